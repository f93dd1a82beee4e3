// Package masking redacts sensitive values before they are written to audit
// metadata.
package masking

import "strings"

const maskToken = "****"

// MaskSecret redacts a secret while keeping a minimal suffix so operators can
// correlate audit entries with the original value. Long opaque blobs such as
// receipt data also keep a short prefix.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	if len(trimmed) > 32 {
		return trimmed[:8] + maskToken + trimmed[len(trimmed)-4:]
	}
	return maskToken + trimmed[len(trimmed)-4:]
}
