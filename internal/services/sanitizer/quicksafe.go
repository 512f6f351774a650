package sanitizer

import (
	"bytes"

	"github.com/icoforge/icoforge/internal/apperrors"
)

// quickRejectPatterns are byte sequences that mark an upload as obviously
// malicious. Matching is case-insensitive and runs before any XML parsing.
var quickRejectPatterns = [][]byte{
	[]byte("<script"),
	[]byte("javascript:"),
	[]byte("vbscript:"),
	[]byte("data:text/html"),
	[]byte("<!entity"),
	[]byte("xi:include"),
	[]byte("<iframe"),
	[]byte("<embed"),
}

// QuickSafe is a coarse fast-reject check run before parsing. It never
// modifies the input; documents that pass still go through Sanitize.
func QuickSafe(data []byte) error {
	lowered := bytes.ToLower(data)
	for _, pattern := range quickRejectPatterns {
		if bytes.Contains(lowered, pattern) {
			return apperrors.New(apperrors.KindSecurityRejected, "The file was rejected for security reasons")
		}
	}
	return nil
}
