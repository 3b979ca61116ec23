// Package imagecheck validates slip uploads before anything is stored.
package imagecheck

import (
	"bytes"
	"errors"
	"image"
	"strings"

	// Decoders registered with image.DecodeConfig.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaxSize is the largest accepted payload, inclusive.
const MaxSize = 5 << 20

var (
	ErrNotImage = errors.New("file must be an image")
	ErrEmpty    = errors.New("file is empty")
	ErrTooLarge = errors.New("file exceeds 5 MiB")
	ErrCorrupt  = errors.New("invalid or corrupted image file")
)

// Info describes an accepted image.
type Info struct {
	Format string
	Width  int
	Height int
}

// Validate checks the declared content type, then the size, then that the
// bytes carry a decodable image header. Only the header is parsed.
func Validate(data []byte, contentType string) (Info, error) {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/") {
		return Info{}, ErrNotImage
	}
	if len(data) == 0 {
		return Info{}, ErrEmpty
	}
	if len(data) > MaxSize {
		return Info{}, ErrTooLarge
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return Info{}, ErrCorrupt
	}
	return Info{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}
