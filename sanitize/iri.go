// Package sanitize provides IRI-component escaping, base-URI checks, and
// PII masking for log and dead-letter output.
package sanitize

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrEmptyIRIComponent indicates an IRI component was empty, or empty
	// after removing unsafe sequences.
	ErrEmptyIRIComponent = errors.New("empty IRI component")
	// ErrMalformedBaseURI indicates a base URI is not an absolute IRI
	// ending in "/" or "#".
	ErrMalformedBaseURI = errors.New("malformed base URI")
)

const upperhex = "0123456789ABCDEF"

// Component sanitizes a string for use as the identifier portion of an
// IRI. Null bytes, ASCII control characters, and backslashes are removed;
// "../" traversal sequences are stripped; all remaining characters outside
// the RFC 3986 unreserved and sub-delims sets are percent-encoded. An
// existing percent escape is left intact, which makes Component
// idempotent.
//
// Returns [ErrEmptyIRIComponent] if the input is empty or contains only
// slashes and removable characters.
func Component(s string) (string, error) {
	cleaned := removeUnsafe(s)

	if strings.Trim(cleaned, "/") == "" {
		return "", fmt.Errorf("%w: %q", ErrEmptyIRIComponent, s)
	}

	var sb strings.Builder
	sb.Grow(len(cleaned))

	for i := 0; i < len(cleaned); i++ {
		c := cleaned[i]

		switch {
		case isUnreserved(c) || isSubDelim(c):
			sb.WriteByte(c)

		case c == '%' && i+2 < len(cleaned) && isHex(cleaned[i+1]) && isHex(cleaned[i+2]):
			// Keep existing escapes so repeated sanitization is stable.
			sb.WriteByte(c)

		default:
			sb.WriteByte('%')
			sb.WriteByte(upperhex[c>>4])
			sb.WriteByte(upperhex[c&0xf])
		}
	}

	return sb.String(), nil
}

// removeUnsafe strips null bytes, control characters, parent-directory
// traversal sequences, and backslashes, in that order so that "..\" is
// caught before the backslash is dropped.
func removeUnsafe(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c == 0x7f {
			continue
		}

		sb.WriteByte(c)
	}

	out := sb.String()

	// Removing one traversal can expose another (e.g. "..././").
	for {
		next := strings.ReplaceAll(out, "../", "")
		next = strings.ReplaceAll(next, "..\\", "")

		if next == out {
			break
		}

		out = next
	}

	return strings.ReplaceAll(out, "\\", "")
}

// BaseURI validates that base is an absolute IRI ending in "/" or "#".
func BaseURI(base string) error {
	if !strings.HasSuffix(base, "/") && !strings.HasSuffix(base, "#") {
		return fmt.Errorf("%w: %q must end with %q or %q", ErrMalformedBaseURI, base, "/", "#")
	}

	u, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrMalformedBaseURI, base, err)
	}

	if !u.IsAbs() {
		return fmt.Errorf("%w: %q is not absolute", ErrMalformedBaseURI, base)
	}

	return nil
}

func isUnreserved(c byte) bool {
	return c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

func isSubDelim(c byte) bool {
	switch c {
	case '!', '$', '&', '\'', '(', ')', '*', '+', ',', ';', '=':
		return true
	}

	return false
}

func isHex(c byte) bool {
	return c >= '0' && c <= '9' ||
		c >= 'a' && c <= 'f' ||
		c >= 'A' && c <= 'F'
}
