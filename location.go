package kvvs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath resolves a leading ~ in a local path or file: URL.
// Other URLs (gs://, s3://) are returned unchanged.
func ExpandPath(location string) (string, error) {
	trimmed := strings.TrimSpace(location)
	if trimmed == "" {
		return location, nil
	}
	if strings.HasPrefix(trimmed, "file:") {
		rest := strings.TrimPrefix(trimmed, "file://localhost")
		if rest == trimmed {
			rest = strings.TrimPrefix(trimmed, "file://")
		}
		if rest == trimmed {
			rest = strings.TrimPrefix(trimmed, "file:")
		}
		rest = strings.TrimLeft(rest, "/")
		if !strings.HasPrefix(rest, "~") {
			return location, nil
		}
		expanded, err := expandHome(rest, location)
		if err != nil {
			return "", err
		}
		return "file://" + filepath.ToSlash(expanded), nil
	}
	if trimmed[0] != '~' {
		return location, nil
	}
	return expandHome(trimmed, location)
}

func expandHome(trimmed, location string) (string, error) {
	if trimmed != "~" && !strings.HasPrefix(trimmed, "~/") {
		return "", fmt.Errorf("unsupported ~user path: %s", location)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(trimmed, "~")), nil
}

// IsLocal reports whether location names the local file system.
func IsLocal(location string) bool {
	if strings.HasPrefix(location, "file:") {
		return true
	}
	return !strings.Contains(location, "://")
}
