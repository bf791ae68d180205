package backup

import (
	"fmt"
	"regexp"
)

// Subvolume paths are restricted to a conservative allow-list so they can be
// embedded in archive names and handed to external tools without ambiguity.
var safePath = regexp.MustCompile(`^[0-9a-zA-Z_/-]+$`)

// ValidatePath rejects paths containing characters outside [0-9a-zA-Z_/-].
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty subvolume path")
	}
	if !safePath.MatchString(path) {
		return fmt.Errorf("unsafe subvolume path %q: only alphanumerics, underscore, hyphen, and slash are allowed", path)
	}
	return nil
}
