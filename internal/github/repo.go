package github

import (
	"fmt"
	"net/url"
	"strings"
)

// ParseRepo normalizes a repository reference to "owner/name". It accepts
// the bare form as well as https://github.com/owner/name[.git] URLs.
func ParseRepo(ref string) (string, error) {
	s := strings.TrimSpace(ref)
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", fmt.Errorf("invalid repository url %q: %w", ref, err)
		}
		s = u.Path
	}
	s = strings.Trim(s, "/")
	s = strings.TrimSuffix(s, ".git")

	parts := strings.Split(s, "/")
	if len(parts) != 2 || !validSegment(parts[0]) || !validSegment(parts[1]) {
		return "", fmt.Errorf("invalid repository reference %q (expected owner/name)", ref)
	}
	return parts[0] + "/" + parts[1], nil
}

func validSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return true
}
