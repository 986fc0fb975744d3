package fs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/calvinalkan/pmat/pkg/fs"
)

func TestPreadPwriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "region.bin")

	real := fs.NewReal()

	f, err := real.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o660)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	if _, err := f.Write(make([]byte, 64)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if _, err := f.Seek(0, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}

	want := []byte("0123456789abcdef")

	if err := fs.Pwrite(f, want, 16); err != nil {
		t.Fatalf("Pwrite: %v", err)
	}

	got := make([]byte, len(want))
	if err := fs.Pread(f, got, 16); err != nil {
		t.Fatalf("Pread: %v", err)
	}

	if string(got) != string(want) {
		t.Fatalf("Pread = %q, want %q", got, want)
	}

	// Seek position must be untouched by pread/pwrite.
	pos, err := f.Seek(0, 1)
	if err != nil {
		t.Fatalf("Seek: %v", err)
	}

	if pos != 0 {
		t.Fatalf("seek position = %d, want 0 (pread/pwrite must not move it)", pos)
	}
}

func TestPreadShortRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "short.bin")

	real := fs.NewReal()

	f, err := real.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o660)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	buf := make([]byte, 16)
	if err := fs.Pread(f, buf, 0); err == nil {
		t.Fatal("expected error reading past EOF of an empty file")
	}
}
