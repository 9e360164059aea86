// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ids

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/pdiddy/research-engine/pkg/types"
)

var (
	pdfSuffixPattern = regexp.MustCompile(`(?i)\.pdf(?:$|\?)`)
	pdfPathPattern   = regexp.MustCompile(`(?i)/pdf/`)
)

// knownFulltextHosts map a host substring to the URL shape it always
// serves, independent of path.
var knownFulltextHosts = []struct {
	substr string
	shape  types.URLShape
}{
	{"doi.org", types.ShapeDOIResolver},
	{"ncbi.nlm.nih.gov/pmc", types.ShapeHTMLFulltext},
	{"arxiv.org/abs", types.ShapeHTMLFulltext},
	{"arxiv.org/pdf", types.ShapePDFDirect},
}

// ClassifyURLShape buckets a URL by what it's expected to serve, without
// making a network request. Idempotent: classifying an already-classified
// URL's string form returns the same shape.
func ClassifyURLShape(rawURL string) types.URLShape {
	u, err := url.Parse(rawURL)
	if err != nil {
		return types.ShapeUnknown
	}
	host := strings.ToLower(u.Host)
	pathAndHost := host + u.Path

	for _, known := range knownFulltextHosts {
		if strings.Contains(pathAndHost, known.substr) {
			return known.shape
		}
	}

	switch {
	case pdfSuffixPattern.MatchString(rawURL), pdfPathPattern.MatchString(u.Path):
		return types.ShapePDFDirect
	case u.Path == "" || u.Path == "/":
		return types.ShapeLandingPage
	default:
		return types.ShapeLandingPage
	}
}

const (
	minPDFBytes = 1024
	maxPDFBytes = 100 * 1024 * 1024
)

// ValidatePDFBytes checks the "%PDF" magic header and size bounds before
// a downloaded body is written to the content-addressed PDF store.
func ValidatePDFBytes(b []byte) error {
	if len(b) < minPDFBytes {
		return fmt.Errorf("ids: body too small to be a valid PDF (%d bytes)", len(b))
	}
	if len(b) > maxPDFBytes {
		return fmt.Errorf("ids: body exceeds max PDF size (%d bytes)", len(b))
	}
	if len(b) < 4 || string(b[:4]) != "%PDF" {
		return fmt.Errorf("ids: missing %%PDF magic header")
	}
	return nil
}
