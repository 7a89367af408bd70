package registry

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxNameBytes is the S3 key length limit.
const maxNameBytes = 1024

// ReservedPrefix is kept for the service's own routes.
const ReservedPrefix = "-/"

// ValidateName checks that name can be used as an object key and as a
// download URL segment.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return &ValidationError{Message: "missing name"}
	case len(name) > maxNameBytes:
		return &ValidationError{Message: "name too long"}
	case !utf8.ValidString(name):
		return &ValidationError{Message: "name must be valid UTF-8"}
	case strings.HasPrefix(name, "/"):
		return &ValidationError{Message: "name must not start with /"}
	case strings.HasPrefix(name, ReservedPrefix):
		return &ValidationError{Message: "name uses a reserved prefix"}
	case strings.IndexFunc(name, unicode.IsControl) >= 0:
		return &ValidationError{Message: "name must not contain control characters"}
	case !cleanSegments(name):
		return &ValidationError{Message: "name must not contain empty, . or .. segments"}
	}
	return nil
}

// cleanSegments reports whether name survives URL path cleaning
// unchanged, so its download URL is not redirected elsewhere. A single
// trailing slash is kept by the router and is allowed.
func cleanSegments(name string) bool {
	segs := strings.Split(name, "/")
	for i, seg := range segs {
		switch seg {
		case ".", "..":
			return false
		case "":
			if i != len(segs)-1 {
				return false
			}
		}
	}
	return true
}
