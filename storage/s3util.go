package storage

import "strings"

// normalizeS3Prefix strips leading slashes and guarantees a trailing one.
func normalizeS3Prefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

func applyS3Prefix(prefix, name string) string {
	if prefix == "" {
		return name
	}
	// Ensure there is exactly one slash between prefix and name
	if strings.HasSuffix(prefix, "/") {
		return prefix + name
	}
	return prefix + "/" + name
}
