// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ids

import (
	"strings"
	"testing"

	"github.com/pdiddy/research-engine/pkg/types"
)

func TestClassifyURLShape(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want types.URLShape
	}{
		{"direct pdf suffix", "https://example.com/paper.pdf", types.ShapePDFDirect},
		{"pdf suffix with query", "https://example.com/paper.pdf?download=1", types.ShapePDFDirect},
		{"pdf path segment", "https://example.com/content/pdf/10.1/1", types.ShapePDFDirect},
		{"doi resolver", "https://doi.org/10.1038/s41586-021", types.ShapeDOIResolver},
		{"pmc fulltext", "https://www.ncbi.nlm.nih.gov/pmc/articles/PMC123/", types.ShapeHTMLFulltext},
		{"arxiv abstract page", "https://arxiv.org/abs/2301.07041", types.ShapeHTMLFulltext},
		{"arxiv pdf", "https://arxiv.org/pdf/2301.07041", types.ShapePDFDirect},
		{"bare landing page", "https://journal.example.com/articles/42", types.ShapeLandingPage},
		{"unparseable", "://bad url", types.ShapeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyURLShape(tt.url)
			if got != tt.want {
				t.Errorf("ClassifyURLShape(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestClassifyURLShapeIdempotent(t *testing.T) {
	urls := []string{
		"https://example.com/paper.pdf",
		"https://doi.org/10.1038/s41586-021",
		"https://journal.example.com/articles/42",
	}
	for _, u := range urls {
		first := ClassifyURLShape(u)
		second := ClassifyURLShape(u)
		if first != second {
			t.Errorf("ClassifyURLShape(%q) not idempotent: %v then %v", u, first, second)
		}
	}
}

func TestValidatePDFBytes(t *testing.T) {
	validBody := "%PDF-1.4" + strings.Repeat("x", minPDFBytes)

	tests := []struct {
		name    string
		body    []byte
		wantErr bool
	}{
		{"valid", []byte(validBody), false},
		{"too small", []byte("%PDF-1.4"), true},
		{"missing magic header", []byte(strings.Repeat("x", minPDFBytes)), true},
		{"too large", make([]byte, maxPDFBytes+1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePDFBytes(tt.body)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePDFBytes() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
