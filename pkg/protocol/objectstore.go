package protocol

import (
	"context"
	"io"
	"time"

	"github.com/strandhq/strand/pkg/models"
)

// ObjectStore stores node payloads too large for execution records. Objects
// are written once, addressed by opaque references, and never mutated.
type ObjectStore interface {
	// Write stores the reader's content and returns its reference.
	Write(ctx context.Context, r io.Reader, mime string) (*models.ObjectRef, error)

	// Open returns the content for a previously written reference.
	Open(ctx context.Context, ref models.ObjectRef) (io.ReadCloser, error)

	// Presign returns a time-limited URL from which the object can be
	// fetched without further authentication.
	Presign(ref models.ObjectRef, ttl time.Duration) (string, error)
}
