package email

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/pkg/objectstore"
)

func rawMessage(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n") + "\r\n")
}

func TestParseMessage_PlainText(t *testing.T) {
	raw := rawMessage(
		"From: Ada Lovelace <ada@example.com>",
		"To: orders@strand.example",
		"Subject: New order",
		"Message-Id: <abc-123@mail.example>",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Order 42 has shipped.",
	)

	message, err := ParseMessage(context.Background(), raw, nil)
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", message.From)
	assert.Equal(t, []string{"orders@strand.example"}, message.To)
	assert.Equal(t, "New order", message.Subject)
	assert.Equal(t, "abc-123@mail.example", message.MessageID)
	assert.Equal(t, "Order 42 has shipped.", message.TextBody)
	assert.Empty(t, message.HTMLBody)
	assert.Empty(t, message.Attachments)
	assert.False(t, message.ReceivedAt.IsZero())
	assert.Equal(t, "New order", message.Headers["Subject"])
}

func TestParseMessage_QuotedPrintableBody(t *testing.T) {
	raw := rawMessage(
		"From: ada@example.com",
		"To: orders@strand.example",
		"Subject: Hello",
		"Content-Type: text/plain; charset=utf-8",
		"Content-Transfer-Encoding: quoted-printable",
		"",
		"Caf=C3=A9 time",
	)

	message, err := ParseMessage(context.Background(), raw, nil)
	require.NoError(t, err)
	assert.Equal(t, "Café time", message.TextBody)
}

func TestParseMessage_MissingContentTypeDefaultsToText(t *testing.T) {
	raw := rawMessage(
		"From: ada@example.com",
		"To: orders@strand.example",
		"Subject: Bare",
		"",
		"just a body",
	)

	message, err := ParseMessage(context.Background(), raw, nil)
	require.NoError(t, err)
	assert.Equal(t, "just a body", message.TextBody)
}

func TestParseMessage_MultipartWithAttachment(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := objectstore.NewStore(t.TempDir(), "http://localhost:9001/v1", nil, logger)
	require.NoError(t, err)

	raw := rawMessage(
		"From: ada@example.com",
		"To: orders@strand.example, audit@strand.example",
		"Subject: =?UTF-8?Q?Invoice_n=C2=BA_42?=",
		"MIME-Version: 1.0",
		"Content-Type: multipart/mixed; boundary=outer",
		"",
		"--outer",
		"Content-Type: multipart/alternative; boundary=inner",
		"",
		"--inner",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Your invoice is attached.",
		"--inner",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>Your invoice is attached.</p>",
		"--inner--",
		"--outer",
		"Content-Type: application/pdf",
		`Content-Disposition: attachment; filename="invoice.pdf"`,
		"Content-Transfer-Encoding: base64",
		"",
		"JVBERi0xLjQK",
		"--outer--",
	)

	message, err := ParseMessage(context.Background(), raw, store)
	require.NoError(t, err)

	assert.Equal(t, "Invoice nº 42", message.Subject)
	assert.Equal(t, []string{"orders@strand.example", "audit@strand.example"}, message.To)
	assert.Equal(t, "Your invoice is attached.", message.TextBody)
	assert.Equal(t, "<p>Your invoice is attached.</p>", message.HTMLBody)

	require.Len(t, message.Attachments, 1)
	ref := message.Attachments[0]
	assert.Equal(t, "application/pdf", ref.MIME)

	reader, err := store.Open(context.Background(), ref)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, reader.Close())
	}()

	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4\n", string(content))
}

func TestParseMessage_NilStoreSkipsAttachments(t *testing.T) {
	raw := rawMessage(
		"From: ada@example.com",
		"To: orders@strand.example",
		"Subject: Attachment only",
		"MIME-Version: 1.0",
		"Content-Type: multipart/mixed; boundary=outer",
		"",
		"--outer",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"see attached",
		"--outer",
		"Content-Type: application/octet-stream",
		`Content-Disposition: attachment; filename="data.bin"`,
		"",
		"binary-ish",
		"--outer--",
	)

	message, err := ParseMessage(context.Background(), raw, nil)
	require.NoError(t, err)
	assert.Equal(t, "see attached", message.TextBody)
	assert.Empty(t, message.Attachments)
}

func TestParseMessage_Invalid(t *testing.T) {
	_, err := ParseMessage(context.Background(), []byte("this is not an email"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse email message")
}
