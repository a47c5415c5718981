package cmd

import (
	"fmt"
	"log/slog"

	"github.com/strandhq/strand/pkg/objectstore"
)

// NewObjectStore opens the artifact store rooted at the given directory.
// An empty secret disables presigned download links.
func NewObjectStore(logger *slog.Logger, root, baseURL, secretKey string) *objectstore.Store {
	var secret []byte
	if secretKey != "" {
		secret = []byte(secretKey)
	}

	store, err := objectstore.NewStore(root, baseURL, secret, logger)
	if err != nil {
		panic(fmt.Errorf("failed to open object store: %w", err))
	}

	return store
}
