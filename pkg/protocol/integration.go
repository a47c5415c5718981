package protocol

import "context"

// TokenSource resolves an integration ID to a currently valid access token,
// refreshing expired credentials as needed. Refreshes for the same
// integration are serialized by the implementation, so concurrent nodes can
// call this freely.
type TokenSource interface {
	GetValidAccessToken(ctx context.Context, integrationID string) (string, error)
}
