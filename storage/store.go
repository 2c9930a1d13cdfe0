package storage

import (
	"context"
	"io"
	"time"
)

// AssetStore is the object-storage client used by the upload pipeline.
// It hands out presigned write locations, transfers bytes to them, and
// removes objects (the compensating path and asset deletion).
type AssetStore interface {
	// PresignPut returns a presigned PUT URL for objectKey, valid for expiry.
	PresignPut(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	// PutBytes streams body to a previously presigned write location. The
	// declared media type is sent as the transfer's Content-Type header.
	PutBytes(ctx context.Context, uploadURL string, body io.Reader, size int64, mediaType string) error
	// Remove deletes an object. Removing a missing object is not an error.
	Remove(ctx context.Context, objectKey string) error
	// DurableURL returns the externally visible URL the object will be
	// reachable at once written.
	DurableURL(objectKey string) string
}
