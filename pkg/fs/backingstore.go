package fs

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Pread reads exactly len(buf) bytes from file at offset off, without
// disturbing the file's current seek position.
//
// Used by pmat's durability writeback path to read a cache line's current
// backing-file contents before merging in dirty bytes.
func Pread(file File, buf []byte, off int64) error {
	fd := int(file.Fd())

	n, err := unix.Pread(fd, buf, off)
	if err != nil {
		return fmt.Errorf("pread at offset %d: %w", off, err)
	}

	if n != len(buf) {
		return fmt.Errorf("pread at offset %d: short read (%d of %d bytes)", off, n, len(buf))
	}

	return nil
}

// Pwrite writes exactly len(buf) bytes to file at offset off, without
// disturbing the file's current seek position.
func Pwrite(file File, buf []byte, off int64) error {
	fd := int(file.Fd())

	n, err := unix.Pwrite(fd, buf, off)
	if err != nil {
		return fmt.Errorf("pwrite at offset %d: %w", off, err)
	}

	if n != len(buf) {
		return fmt.Errorf("pwrite at offset %d: short write (%d of %d bytes)", off, n, len(buf))
	}

	return nil
}
