package engine

import (
	"bytes"
	"net/http"
	"strings"
)

// BlockDetector decides whether a response is a soft-block: an
// interstitial, CAPTCHA or ban page served instead of real content.
type BlockDetector interface {
	IsBlocked(body []byte, status int) bool
}

// BlockDetectorFunc adapts a function to BlockDetector.
type BlockDetectorFunc func(body []byte, status int) bool

func (f BlockDetectorFunc) IsBlocked(body []byte, status int) bool { return f(body, status) }

// SignatureDetector flags 403 responses and bodies containing any of a
// set of case-insensitive signatures.
type SignatureDetector struct {
	signatures [][]byte
}

// DefaultSignatures are the markers of the site's block pages.
var DefaultSignatures = []string{"captcha", "blocked", "banned"}

// NewSignatureDetector creates a detector for the given signatures.
// Empty signatures are ignored.
func NewSignatureDetector(signatures []string) *SignatureDetector {
	d := &SignatureDetector{}
	for _, s := range signatures {
		if s = strings.TrimSpace(s); s != "" {
			d.signatures = append(d.signatures, []byte(strings.ToLower(s)))
		}
	}
	return d
}

func (d *SignatureDetector) IsBlocked(body []byte, status int) bool {
	if status == http.StatusForbidden {
		return true
	}
	if len(d.signatures) == 0 || len(body) == 0 {
		return false
	}
	lower := bytes.ToLower(body)
	for _, sig := range d.signatures {
		if bytes.Contains(lower, sig) {
			return true
		}
	}
	return false
}
