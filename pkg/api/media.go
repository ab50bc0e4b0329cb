package api

import "context"

// ImageHost stores an image and returns its public URL.
type ImageHost interface {
	Upload(ctx context.Context, filename string, data []byte) (string, error)
}
