package incremental

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// LinkOrCopy makes `dst` a hard link of `src`, falling back to a byte copy
// when the two paths are on different file systems. An existing `dst` is replaced.
func LinkOrCopy(src, dst string) error {
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Link(src, dst); err == nil {
		return nil
	}
	return CopyFile(src, dst)
}

// CopyFile copies the contents of `src` to `dst`, truncating `dst`.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrapf(err, "copying %v to %v", src, dst)
	}
	return out.Close()
}
