// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ids classifies and canonicalizes the identifiers the pipeline
// deals with: dataset IDs, publication IDs (PMID, DOI, PMC, arXiv), and
// the URLs discovered for them.
package ids

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"

	"github.com/pdiddy/research-engine/pkg/types"
)

// Kind classifies a publication identifier.
type Kind int

const (
	KindUnknown Kind = iota
	KindPMID
	KindDOI
	KindPMC
	KindArxiv
)

func (k Kind) String() string {
	switch k {
	case KindPMID:
		return "pmid"
	case KindDOI:
		return "doi"
	case KindPMC:
		return "pmc"
	case KindArxiv:
		return "arxiv"
	default:
		return "unknown"
	}
}

var (
	pmidPattern  = regexp.MustCompile(`^\d{1,8}$`)
	doiPattern   = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)
	pmcPattern   = regexp.MustCompile(`^PMC\d+$`)
	arxivPattern = regexp.MustCompile(`^(?:arXiv:)?(\d{4}\.\d{4,5})(?:v\d+)?$`)
)

// Classify determines the identifier kind and returns its canonical form.
// DOIs are lowercased (the merge tie-break rule relies on this); arXiv
// IDs have their version suffix stripped — "2301.07041v2" canonicalizes
// to "2301.07041".
func Classify(identifier string) (Kind, string) {
	identifier = strings.TrimSpace(identifier)

	if pmidPattern.MatchString(identifier) {
		return KindPMID, identifier
	}
	if m := arxivPattern.FindStringSubmatch(identifier); m != nil {
		return KindArxiv, m[1]
	}
	if pmcPattern.MatchString(identifier) {
		return KindPMC, identifier
	}
	if doiPattern.MatchString(identifier) {
		return KindDOI, strings.ToLower(identifier)
	}

	return KindUnknown, identifier
}

// CanonicalKey returns the dedup key used by citation discovery: DOI
// lowercased if present, else PMID, else PMC ID, else the version-stripped
// arXiv ID, else the normalized title (NormalizeTitle, not hashed).
func CanonicalKey(pub types.Publication) string {
	if pub.DOI != "" {
		return "doi:" + strings.ToLower(pub.DOI)
	}
	if pub.PMID != "" {
		return "pmid:" + pub.PMID
	}
	if pub.PMCID != "" {
		return "pmc:" + strings.ToUpper(pub.PMCID)
	}
	if pub.ArxivID != "" {
		_, norm := Classify(pub.ArxivID)
		return "arxiv:" + norm
	}
	return "title:" + NormalizeTitle(pub.Title)
}

// NormalizeTitle lowercases a title and strips punctuation, collapsing
// whitespace, for CanonicalKey's title dedup fallback.
func NormalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// UniversalID derives the PDF filename stem for a publication: PMID if
// present, else DOI (slashes replaced with hyphens), else PMC ID, else
// arXiv ID, else a content-hash prefix.
func UniversalID(pub types.Publication) string {
	switch {
	case pub.PMID != "":
		return pub.PMID
	case pub.DOI != "":
		return DOISlug(pub.DOI)
	case pub.PMCID != "":
		return pub.PMCID
	case pub.ArxivID != "":
		return pub.ArxivID
	default:
		return "sha-" + shortHash(pub.Title)
	}
}

// DOISlug makes a DOI filesystem-safe by replacing "/" and ":" with "-".
func DOISlug(doi string) string {
	return strings.NewReplacer("/", "-", ":", "-").Replace(strings.ToLower(doi))
}

// SanitizeFilename strips characters that are unsafe in a filesystem path
// component, collapsing anything non-alphanumeric to a hyphen.
func SanitizeFilename(s string) string {
	var b strings.Builder
	lastHyphen := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func shortHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:8])
}
