package objectstore_test

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/objectstore"
)

func newStore(t *testing.T) *objectstore.Store {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := objectstore.NewStore(t.TempDir(), "http://localhost:9001/v1", []byte("signing-secret"), logger)
	require.NoError(t, err)

	return store
}

func TestWriteAndOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)

	ref, err := store.Write(ctx, strings.NewReader("rendered report body"), "application/pdf")
	require.NoError(t, err)
	assert.NotEmpty(t, ref.ID)
	assert.Equal(t, "application/pdf", ref.MIME)
	assert.Equal(t, int64(len("rendered report body")), ref.Size)
	assert.False(t, ref.CreatedAt.IsZero())

	reader, err := store.Open(ctx, *ref)
	require.NoError(t, err)

	defer func() { _ = reader.Close() }()

	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "rendered report body", string(content))

	stat, err := store.Stat(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, ref.Size, stat.Size)
}

func TestOpenMissingObject(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	_, err := store.Open(context.Background(), models.ObjectRef{ID: "00000000-0000-0000-0000-000000000000"})
	assert.ErrorIs(t, err, objectstore.ErrObjectNotFound)

	_, err = store.Stat(context.Background(), "../escape")
	assert.ErrorIs(t, err, objectstore.ErrObjectNotFound)
}

func TestWritesNeverCollide(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)

	first, err := store.Write(ctx, strings.NewReader("one"), "text/plain")
	require.NoError(t, err)

	second, err := store.Write(ctx, strings.NewReader("two"), "text/plain")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)

	reader, err := store.Open(ctx, *first)
	require.NoError(t, err)

	defer func() { _ = reader.Close() }()

	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "one", string(content))
}

func TestPresignAndVerify(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)

	ref, err := store.Write(ctx, strings.NewReader("payload"), "text/plain")
	require.NoError(t, err)

	signed, err := store.Presign(*ref, time.Minute)
	require.NoError(t, err)

	parsed, err := url.Parse(signed)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(parsed.Path, "/objects/"+ref.ID))

	expires, err := strconv.ParseInt(parsed.Query().Get("expires"), 10, 64)
	require.NoError(t, err)

	signature := parsed.Query().Get("signature")
	require.NotEmpty(t, signature)

	t.Run("valid signature passes", func(t *testing.T) {
		assert.NoError(t, store.Verify(ref.ID, expires, signature))
	})

	t.Run("tampered object id fails", func(t *testing.T) {
		err := store.Verify("other-object", expires, signature)
		assert.ErrorIs(t, err, objectstore.ErrSignatureInvalid)
	})

	t.Run("tampered expiry fails", func(t *testing.T) {
		err := store.Verify(ref.ID, expires+60, signature)
		assert.ErrorIs(t, err, objectstore.ErrSignatureInvalid)
	})

	t.Run("expired link fails", func(t *testing.T) {
		past, err := store.Presign(*ref, -time.Minute)
		require.NoError(t, err)

		parsed, err := url.Parse(past)
		require.NoError(t, err)

		expired, err := strconv.ParseInt(parsed.Query().Get("expires"), 10, 64)
		require.NoError(t, err)

		verifyErr := store.Verify(ref.ID, expired, parsed.Query().Get("signature"))
		assert.ErrorIs(t, verifyErr, objectstore.ErrSignatureExpired)
	})
}

func TestPresignRequiresSecret(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := objectstore.NewStore(t.TempDir(), "http://localhost:9001/v1", nil, logger)
	require.NoError(t, err)

	_, err = store.Presign(models.ObjectRef{ID: "obj-1"}, time.Minute)
	assert.ErrorIs(t, err, objectstore.ErrPresignUnavailable)
}
