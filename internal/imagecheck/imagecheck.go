// Package imagecheck validates captured images before any external call.
package imagecheck

import (
	"bytes"

	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/apperr"
)

var (
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
)

// Check enforces the format and size constraints: JPEG or PNG, non-empty,
// at most maxBytes. Anything else is a client error caught before any
// network call.
func Check(data []byte, maxBytes int64) error {
	if len(data) == 0 {
		return apperr.New(apperr.Validation, apperr.CodeInvalidImage, "image is empty")
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return apperr.Newf(apperr.Validation, apperr.CodeInvalidImage, "image exceeds %d bytes", maxBytes)
	}
	if !bytes.HasPrefix(data, jpegMagic) && !bytes.HasPrefix(data, pngMagic) {
		return apperr.New(apperr.Validation, apperr.CodeInvalidImage, "image must be JPEG or PNG")
	}
	return nil
}
