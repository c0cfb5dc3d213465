package filestore

import "strings"

// ObjectKey returns the key part of a reference produced by Put. It
// reports false for references without a scheme and bucket.
func ObjectKey(ref string) (string, bool) {
	_, rest, ok := strings.Cut(ref, "://")
	if !ok {
		return "", false
	}
	_, key, ok := strings.Cut(rest, "/")
	if !ok || key == "" {
		return "", false
	}
	return key, true
}
