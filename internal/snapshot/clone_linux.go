//go:build linux

package snapshot

import (
	"os"

	"golang.org/x/sys/unix"
)

// cloneFile shares the extents of in with out (FICLONE). It reports false
// when the filesystem cannot reflink, leaving out untouched.
func cloneFile(out, in *os.File) bool {
	return unix.IoctlFileClone(int(out.Fd()), int(in.Fd())) == nil
}
