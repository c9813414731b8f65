package mirror

import (
	"fmt"
	"strings"
)

// validateTag makes sure a release tag is safe to use verbatim as a path
// component under the destination root. Tags come from the remote release
// listing so a hostile value must never become a path.
func validateTag(tag string) error {
	if tag == "" {
		return fmt.Errorf("release tag cannot be empty")
	}
	if tag == "." || tag == ".." {
		return fmt.Errorf("release tag '%s' is not a valid directory name", tag)
	}
	if strings.ContainsAny(tag, `/\`) || strings.ContainsRune(tag, 0) {
		return fmt.Errorf("release tag '%s' contains path separator", tag)
	}
	return nil
}
