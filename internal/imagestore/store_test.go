package imagestore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveAndRemove(t *testing.T) {
	s := New(t.TempDir())

	p1, err := s.Save("s-1", []byte{0xFF, 0xD8, 0xFF})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	p2, err := s.Save("s-1", []byte{0xFF, 0xD8, 0xFF})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if p1 == p2 {
		t.Fatalf("paths must be unique, got %q twice", p1)
	}
	if filepath.Base(filepath.Dir(p1)) != "s-1" {
		t.Fatalf("image not under student dir: %q", p1)
	}
	if !strings.HasSuffix(p1, ".jpg") {
		t.Fatalf("unexpected extension: %q", p1)
	}

	data, err := os.ReadFile(p1)
	if err != nil || len(data) != 3 {
		t.Fatalf("read back: %v (%d bytes)", err, len(data))
	}

	s.Remove(p1, p2)
	if _, err := os.Stat(p1); !os.IsNotExist(err) {
		t.Fatalf("file still present after Remove: %v", err)
	}
	// removing again must be harmless
	s.Remove(p1)
}
