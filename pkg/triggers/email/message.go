package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/protocol"
)

// ParseMessage parses a raw RFC 5322 message into the stored payload shape.
// Attachment parts are written to objects and carried as references; with a
// nil store attachments are dropped and only the bodies survive.
func ParseMessage(ctx context.Context, raw []byte, objects protocol.ObjectStore) (*models.EmailMessage, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse email message: %w", err)
	}

	header := msg.Header

	message := &models.EmailMessage{
		MessageID:  strings.Trim(header.Get("Message-Id"), "<>"),
		Subject:    decodeHeader(header.Get("Subject")),
		Headers:    flattenHeaders(header),
		ReceivedAt: time.Now().UTC(),
	}

	if from, err := mail.ParseAddress(header.Get("From")); err == nil {
		message.From = from.Address
	} else {
		message.From = header.Get("From")
	}

	if list, err := header.AddressList("To"); err == nil {
		for _, addr := range list {
			message.To = append(message.To, addr.Address)
		}
	}

	contentType := header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, params = "text/plain", nil
	}

	encoding := header.Get("Content-Transfer-Encoding")

	if strings.HasPrefix(mediaType, "multipart/") {
		err = walkMultipart(ctx, message, params["boundary"], msg.Body, objects)
	} else {
		err = readSinglePart(message, mediaType, encoding, msg.Body)
	}

	if err != nil {
		return nil, err
	}

	return message, nil
}

func readSinglePart(message *models.EmailMessage, mediaType, encoding string, body io.Reader) error {
	text, err := readBody(body, encoding)
	if err != nil {
		return err
	}

	if mediaType == "text/html" {
		message.HTMLBody = text
	} else {
		message.TextBody = text
	}

	return nil
}

func walkMultipart(ctx context.Context, message *models.EmailMessage, boundary string, body io.Reader, objects protocol.ObjectStore) error {
	if boundary == "" {
		return errors.New("multipart email message without boundary")
	}

	reader := multipart.NewReader(body, boundary)

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("failed to read mime part: %w", err)
		}

		if err := consumePart(ctx, message, part, objects); err != nil {
			return err
		}
	}
}

func consumePart(ctx context.Context, message *models.EmailMessage, part *multipart.Part, objects protocol.ObjectStore) error {
	partType, partParams, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
	if err != nil {
		partType, partParams = "text/plain", nil
	}

	// Quoted-printable parts arrive already decoded; multipart hides that
	// header and decodes during Read.
	encoding := part.Header.Get("Content-Transfer-Encoding")

	switch {
	case strings.HasPrefix(partType, "multipart/"):
		return walkMultipart(ctx, message, partParams["boundary"], part, objects)
	case part.FileName() != "":
		return storeAttachment(ctx, message, part, partType, encoding, objects)
	case partType == "text/plain" && message.TextBody == "":
		text, err := readBody(part, encoding)
		if err != nil {
			return err
		}

		message.TextBody = text
	case partType == "text/html" && message.HTMLBody == "":
		html, err := readBody(part, encoding)
		if err != nil {
			return err
		}

		message.HTMLBody = html
	}

	return nil
}

func storeAttachment(ctx context.Context, message *models.EmailMessage, part *multipart.Part, partType, encoding string, objects protocol.ObjectStore) error {
	if objects == nil {
		return nil
	}

	ref, err := objects.Write(ctx, decodeReader(part, encoding), partType)
	if err != nil {
		return fmt.Errorf("failed to store attachment %s: %w", part.FileName(), err)
	}

	message.Attachments = append(message.Attachments, *ref)

	return nil
}

func readBody(body io.Reader, encoding string) (string, error) {
	data, err := io.ReadAll(decodeReader(body, encoding))
	if err != nil {
		return "", fmt.Errorf("failed to read message body: %w", err)
	}

	return strings.TrimRight(string(data), "\r\n"), nil
}

func decodeReader(body io.Reader, encoding string) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, body)
	case "quoted-printable":
		return quotedprintable.NewReader(body)
	default:
		return body
	}
}

// decodeHeader resolves RFC 2047 encoded words, falling back to the raw
// value when decoding fails.
func decodeHeader(value string) string {
	decoded, err := new(mime.WordDecoder).DecodeHeader(value)
	if err != nil {
		return value
	}

	return decoded
}

func flattenHeaders(header mail.Header) map[string]string {
	out := make(map[string]string, len(header))

	for name, values := range header {
		if len(values) > 0 {
			out[name] = values[0]
		}
	}

	return out
}
