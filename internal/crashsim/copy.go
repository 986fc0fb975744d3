package crashsim

import (
	"fmt"
	"io"
	"os/exec"

	"github.com/calvinalkan/pmat/pkg/fs"
)

// copyFile snapshots src to dst. It prefers shelling out to the system `cp
// --reflink=auto`, which is a cheap copy-on-write clone on filesystems that
// support it and a plain copy otherwise; if `cp` is unavailable or fails, it
// falls back to a straightforward io.Copy over fsys.
func copyFile(fsys fs.FS, src, dst string) error {
	if reflinkCopy(src, dst) == nil {
		return nil
	}

	return plainCopy(fsys, src, dst)
}

func reflinkCopy(src, dst string) error {
	cpPath, err := exec.LookPath("cp")
	if err != nil {
		return err
	}

	return exec.Command(cpPath, "--reflink=auto", src, dst).Run()
}

func plainCopy(fsys fs.FS, src, dst string) error {
	in, err := fsys.Open(src)
	if err != nil {
		return fmt.Errorf("open %q: %w", src, err)
	}
	defer in.Close()

	out, err := fsys.Create(dst)
	if err != nil {
		return fmt.Errorf("create %q: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %q -> %q: %w", src, dst, err)
	}

	return nil
}
