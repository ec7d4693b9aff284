package imagecheck

import (
	"bytes"
	"testing"

	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/apperr"
)

func TestCheck(t *testing.T) {
	jpeg := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, bytes.Repeat([]byte{0x00}, 32)...)
	png := append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, bytes.Repeat([]byte{0x00}, 32)...)

	cases := []struct {
		name     string
		data     []byte
		maxBytes int64
		wantErr  bool
	}{
		{"jpeg ok", jpeg, 1024, false},
		{"png ok", png, 1024, false},
		{"empty", nil, 1024, true},
		{"oversize", jpeg, 8, true},
		{"gif rejected", []byte("GIF89a...."), 1024, true},
		{"pdf rejected", []byte("%PDF-1.4.."), 1024, true},
		{"truncated jpeg header", []byte{0xFF, 0xD8}, 1024, true},
		{"no cap configured", jpeg, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Check(tc.data, tc.maxBytes)
			if tc.wantErr {
				if !apperr.IsCode(err, apperr.CodeInvalidImage) {
					t.Fatalf("want InvalidImage, got %v", err)
				}
				if apperr.KindOf(err) != apperr.Validation {
					t.Fatalf("kind = %v", apperr.KindOf(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
