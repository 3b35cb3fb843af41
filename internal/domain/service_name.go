// Package domain service_name.go contains functions to parse and validate
// the per-user service identifier distinguishing multiple vaulted keys.
package domain

// DefaultServiceName is used when a request omits the service parameter.
const DefaultServiceName = "default"

// maxServiceNameLength bounds the identifier so it stays index-friendly.
const maxServiceNameLength = 64

// ParseServiceName normalizes and validates a service identifier. An empty
// value resolves to DefaultServiceName. It enforces:
// - length <= 64
// - only [0-9a-z_-] characters
// Returns ErrInvalidService on failure.
func ParseServiceName(s string) (string, error) {
	if s == "" {
		return DefaultServiceName, nil
	}
	if !isValidServiceName(s) {
		return "", ErrInvalidService
	}
	return s, nil
}

// isValidServiceName performs validation without allocating errors.
func isValidServiceName(s string) bool {
	if len(s) > maxServiceNameLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'z':
		case c == '_' || c == '-':
		default:
			return false
		}
	}
	return true
}
