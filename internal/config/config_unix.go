//go:build !windows

package config

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// openConfigFile opens the file with O_NOFOLLOW to reject symlinks
func openConfigFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_NOFOLLOW, 0)
	if err != nil {
		if errors.Is(err, unix.ELOOP) {
			return nil, ErrSymlink
		}
		return nil, fmt.Errorf("config: failed to open %s: %w", path, err)
	}
	return f, nil
}

// checkFile verifies ownership and permissions with fstat on the open
// descriptor.
func checkFile(f *os.File) error {
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return fmt.Errorf("config: failed to stat %s: %w", f.Name(), err)
	}
	if st.Uid != uint32(unix.Getuid()) {
		return ErrNotOwnedByUser
	}
	if perm := st.Mode & 0o777; perm&0o022 != 0 {
		return fmt.Errorf("%w: %o", ErrInsecureFile, perm)
	}
	return nil
}
