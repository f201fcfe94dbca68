//go:build windows

package config

import (
	"fmt"
	"os"
)

// openConfigFile opens the config file on Windows, which has no O_NOFOLLOW.
func openConfigFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("config: failed to open %s: %w", path, err)
	}
	return f, nil
}

// checkFile on Windows is a no-op. Windows uses ACLs for file ownership.
func checkFile(_ *os.File) error {
	return nil
}
