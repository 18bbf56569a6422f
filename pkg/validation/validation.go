// Package validation holds small, reusable validators used by config
// loading. Kept deliberately stdlib-only: path and
// string validation has no natural third-party library in this stack, and
// pulling one in for a handful of checks would be worse than the stdlib.
package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidateConfigPath rejects path traversal and anything that is not a
// regular, readable file before it is handed to os.ReadFile and yaml.Unmarshal.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("config path must not contain '..': %s", path)
	}
	clean := filepath.Clean(path)

	info, err := os.Stat(clean)
	if err != nil {
		return fmt.Errorf("stat config path: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path %s is a directory, not a file", clean)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("config path %s is not a regular file", clean)
	}
	return nil
}
