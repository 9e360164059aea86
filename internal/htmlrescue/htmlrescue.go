// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package htmlrescue parses a landing page that P3 received instead of a
// PDF and looks for a link a human would recognize as "the PDF". Used
// once per URL, as the fallback step after PDF validation fails.
package htmlrescue

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// pdfAnchorSelectors are tried in priority order; the first selector
// with any match wins.
var pdfAnchorSelectors = []string{
	"a[href$='.pdf']",
	"a[type='application/pdf']",
	"a.pdf-download",
	"a.obj_galley_link",
	"a[href*='/pdf/']",
	"a[href*='pdfdirect']",
}

// pdfTextHints match anchor text or title that names a PDF download even
// when the href itself has no tell-tale shape.
var pdfTextHints = []string{"pdf", "full text", "download pdf"}

// FindPDFLink parses html (the body of a response that failed PDF magic
// validation) and returns the absolute URL of the first anchor that looks
// like a PDF download, resolved against baseURL. ok is false when no
// candidate anchor exists.
func FindPDFLink(html []byte, baseURL string) (link string, ok bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(html)))
	if err != nil {
		return "", false
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", false
	}

	for _, selector := range pdfAnchorSelectors {
		var found string
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, exists := s.Attr("href")
			if !exists || href == "" {
				return true
			}
			found = href
			return false
		})
		if found != "" {
			if resolved, ok := resolve(base, found); ok {
				return resolved, true
			}
		}
	}

	var found string
	doc.Find("a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.ToLower(strings.TrimSpace(s.Text()))
		title := strings.ToLower(s.AttrOr("title", ""))
		for _, hint := range pdfTextHints {
			if strings.Contains(text, hint) || strings.Contains(title, hint) {
				if href, exists := s.Attr("href"); exists && href != "" {
					found = href
					return false
				}
			}
		}
		return true
	})
	if found != "" {
		if resolved, ok := resolve(base, found); ok {
			return resolved, true
		}
	}

	return "", false
}

func resolve(base *url.URL, ref string) (string, bool) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	return base.ResolveReference(u).String(), true
}
