package common

import "regexp"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// IsIdentifier reports whether name is a bare or schema-qualified SQL identifier
// that is safe to splice into a statement.
func IsIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}
