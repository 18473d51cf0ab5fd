// Package storage persists uploaded receipt images. The pipeline reads them
// back by the key recorded on the receipt row, so the store only needs flat
// key/value semantics.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	apperrors "github.com/stocklens/stocklens-backend/errors"
)

// ImageStore saves and loads receipt images by key.
type ImageStore interface {
	Save(ctx context.Context, key string, r io.Reader) error
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Magic prefixes of the accepted image formats.
var (
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pngMagic  = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	riffMagic = []byte("RIFF")
	webpMagic = []byte("WEBP")
)

// SniffImage identifies the image format from content, ignoring whatever
// filename or Content-Type the client claimed. Returns the MIME type or a
// validation error for unsupported formats.
func SniffImage(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, jpegMagic):
		return "image/jpeg", nil
	case bytes.HasPrefix(data, pngMagic):
		return "image/png", nil
	case len(data) >= 12 && bytes.HasPrefix(data, riffMagic) && bytes.HasPrefix(data[8:], webpMagic):
		return "image/webp", nil
	}
	return "", apperrors.ValidationFailed("unsupported image format", "receipt images must be JPEG, PNG or WebP")
}

// validateKey rejects storage keys containing path traversal segments.
func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return fmt.Errorf("invalid storage key %q", key)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return fmt.Errorf("path traversal detected in storage key")
		}
	}
	return nil
}
