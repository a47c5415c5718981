// Package objectstore stores node payloads too large for execution records
// on the local file system. Objects are immutable: written once under a
// fresh ID, then only read until the owning data is cleaned up.
package objectstore

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/strandhq/strand/pkg/models"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrObjectExists   = errors.New("object already exists")

	// ErrSignatureInvalid is returned when a presigned URL's signature does
	// not match, ErrSignatureExpired when it matched but the link is past
	// its expiry.
	ErrSignatureInvalid   = errors.New("object signature invalid")
	ErrSignatureExpired   = errors.New("object link expired")
	ErrPresignUnavailable = errors.New("object presigning requires a signing secret")
)

// Store is a file-system backed object store with HMAC-signed download URLs.
type Store struct {
	root    string
	baseURL string
	secret  []byte
	logger  *slog.Logger
}

// NewStore creates a store rooted at the given directory. baseURL is the
// externally reachable API prefix presigned URLs are built on; secret signs
// them and may be empty if presigning is not used.
func NewStore(root, baseURL string, secret []byte, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("failed to create object store root %s: %w", root, err)
	}

	return &Store{
		root:    root,
		baseURL: baseURL,
		secret:  secret,
		logger:  logger.With("module", "objectstore"),
	}, nil
}

// Write stores the reader's content under a fresh ID and returns its
// reference.
func (s *Store) Write(_ context.Context, r io.Reader, mime string) (*models.ObjectRef, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate object ID: %w", err)
	}

	ref := &models.ObjectRef{
		ID:        id.String(),
		MIME:      mime,
		CreatedAt: time.Now().UTC(),
	}

	filePath, err := s.contentPath(ref.ID)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create object directory: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("object %s: %w", ref.ID, ErrObjectExists)
		}

		return nil, fmt.Errorf("failed to create object %s: %w", ref.ID, err)
	}

	size, err := io.Copy(file, r)
	if err != nil {
		_ = file.Close()
		_ = os.Remove(filePath)

		return nil, fmt.Errorf("failed to write object %s: %w", ref.ID, err)
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(filePath)

		return nil, fmt.Errorf("failed to close object %s: %w", ref.ID, err)
	}

	ref.Size = size

	s.logger.Debug("Stored object", "object_id", ref.ID, "size", size, "mime", mime)

	return ref, nil
}

// Open returns the content for a previously written reference.
func (s *Store) Open(_ context.Context, ref models.ObjectRef) (io.ReadCloser, error) {
	filePath, err := s.contentPath(ref.ID)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filepath.Clean(filePath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object %s: %w", ref.ID, ErrObjectNotFound)
		}

		return nil, fmt.Errorf("failed to open object %s: %w", ref.ID, err)
	}

	return file, nil
}

// Stat reports whether an object exists and returns a reference with its
// stored size.
func (s *Store) Stat(_ context.Context, id string) (*models.ObjectRef, error) {
	filePath, err := s.contentPath(id)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object %s: %w", id, ErrObjectNotFound)
		}

		return nil, fmt.Errorf("failed to stat object %s: %w", id, err)
	}

	return &models.ObjectRef{
		ID:        id,
		Size:      info.Size(),
		CreatedAt: info.ModTime().UTC(),
	}, nil
}

// Presign returns a time-limited download URL for the reference. The URL
// carries an expiry and an HMAC over (object ID, expiry) that Verify checks.
func (s *Store) Presign(ref models.ObjectRef, ttl time.Duration) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrPresignUnavailable
	}

	expires := time.Now().UTC().Add(ttl).Unix()
	signature := s.sign(ref.ID, expires)

	values := url.Values{}
	values.Set("expires", strconv.FormatInt(expires, 10))
	values.Set("signature", signature)

	return fmt.Sprintf("%s/objects/%s?%s", s.baseURL, url.PathEscape(ref.ID), values.Encode()), nil
}

// Verify checks a presigned URL's expiry and signature.
func (s *Store) Verify(id string, expires int64, signature string) error {
	if len(s.secret) == 0 {
		return ErrPresignUnavailable
	}

	expected := s.sign(id, expires)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureInvalid
	}

	if time.Now().UTC().Unix() > expires {
		return ErrSignatureExpired
	}

	return nil
}

func (s *Store) sign(id string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d", id, expires)

	return hex.EncodeToString(mac.Sum(nil))
}

// contentPath shards objects into two-character directories so a busy store
// does not pile every object into one directory.
func (s *Store) contentPath(id string) (string, error) {
	if len(id) < 2 || id != filepath.Base(id) {
		return "", fmt.Errorf("object %s: %w", id, ErrObjectNotFound)
	}

	return filepath.Clean(path.Join(s.root, id[:2], id)), nil
}
