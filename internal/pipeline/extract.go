// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/pdiddy/research-engine/internal/pdftext"
	"github.com/pdiddy/research-engine/pkg/types"
)

// sectionLexicon maps a heading's lowercased text to its canonical
// bucket, generalized from extract.go's chunkByHeadings/isHeading
// Markdown matcher to whatever line the text extractor hands back as a
// heading candidate (short, title-cased, no trailing punctuation).
var sectionLexicon = map[string]string{
	"abstract":       "abstract",
	"summary":        "abstract",
	"introduction":   "introduction",
	"background":     "introduction",
	"methods":        "methods",
	"materials":      "methods",
	"methodology":    "methods",
	"results":        "results",
	"findings":       "results",
	"discussion":     "discussion",
	"conclusion":     "discussion",
	"conclusions":    "discussion",
	"references":     "references",
	"bibliography":   "references",
	"acknowledgment": "other",
	"acknowledgments": "other",
}

var expectedSections = []string{"abstract", "introduction", "methods", "results", "discussion", "references"}

var headingCandidateRe = regexp.MustCompile(`^[A-Z][A-Za-z ]{2,40}$`)

// ExtractResult is P4's output before the coordinator persists it as a
// ContentExtraction row.
type ExtractResult struct {
	Extraction types.ContentExtraction
	ParseError string
}

// Extract reads the PDF at path, sections its text by heading, parses
// inline citations and bibliography entries, and scores quality. Any
// parser fault is recovered and reported as a zero-quality extraction,
// never fatal.
func Extract(datasetID string, publicationID int64, pdfPath, pdfSHA256 string) (result ExtractResult) {
	defer func() {
		if r := recover(); r != nil {
			result = zeroQualityResult(datasetID, publicationID, pdfSHA256, fmt.Sprintf("recovered panic: %v", r))
		}
	}()

	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return zeroQualityResult(datasetID, publicationID, pdfSHA256, err.Error())
	}

	text, pageCount, err := pdftext.Extract(data)
	if err != nil {
		return zeroQualityResult(datasetID, publicationID, pdfSHA256, err.Error())
	}

	sections := chunkByHeadings(text)
	tables := extractTables(text)
	refs := parseBibliography(sections["references"])

	wordCount := len(strings.Fields(text))
	score := qualityScore(sections, pageCount, len(text), len(refs), 0)

	return ExtractResult{Extraction: types.ContentExtraction{
		DatasetID:     datasetID,
		PublicationID: publicationID,
		Sections:      sections,
		Tables:        tables,
		References:    refs,
		PageCount:     pageCount,
		WordCount:     wordCount,
		QualityScore:  score,
		QualityGrade:  types.GradeForScore(score),
		PDFSHA256:     pdfSHA256,
	}}
}

func zeroQualityResult(datasetID string, publicationID int64, sha, parseErr string) ExtractResult {
	return ExtractResult{
		Extraction: types.ContentExtraction{
			DatasetID:     datasetID,
			PublicationID: publicationID,
			Sections:      map[string]string{},
			QualityScore:  0.0,
			QualityGrade:  types.GradeF,
			PDFSHA256:     sha,
		},
		ParseError: parseErr,
	}
}

// chunkByHeadings splits extracted PDF text into named sections, bucketing
// anything under an unrecognized heading as "other". A heading candidate
// is a short title-cased line with no trailing punctuation, generalized
// from extract.go's "## "/"### " Markdown heading test since pdftext has
// no Markdown markers to key off of.
func chunkByHeadings(text string) map[string]string {
	lines := strings.Split(text, "\n")
	sections := make(map[string]string)
	current := "other"
	var body []string

	flush := func() {
		if len(body) == 0 {
			return
		}
		joined := strings.TrimSpace(strings.Join(body, "\n"))
		if joined == "" {
			return
		}
		if existing, ok := sections[current]; ok {
			sections[current] = existing + "\n" + joined
		} else {
			sections[current] = joined
		}
		body = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if bucket, ok := headingBucket(trimmed); ok {
			flush()
			current = bucket
			continue
		}
		body = append(body, line)
	}
	flush()
	return sections
}

func headingBucket(line string) (string, bool) {
	if !headingCandidateRe.MatchString(line) {
		return "", false
	}
	if bucket, ok := sectionLexicon[strings.ToLower(line)]; ok {
		return bucket, true
	}
	return "", false
}

// extractTables is a minimal heuristic: a run of three or more
// consecutive lines each containing two or more runs of whitespace
// (column separators) is treated as one table with no caption.
func extractTables(text string) []types.Table {
	lines := strings.Split(text, "\n")
	colSepRe := regexp.MustCompile(`\s{2,}`)

	var tables []types.Table
	var rows [][]string

	flush := func() {
		if len(rows) >= 3 {
			tables = append(tables, types.Table{Rows: rows})
		}
		rows = nil
	}

	for _, line := range lines {
		cols := colSepRe.Split(strings.TrimSpace(line), -1)
		if len(cols) >= 2 && cols[0] != "" {
			rows = append(rows, cols)
			continue
		}
		flush()
	}
	flush()
	return tables
}

// parseBibliography extracts numbered reference entries, reusing
// citations.go's numbered-entry shape (`[1] Authors. Title. Venue,
// Year.`) renamed to this domain's Reference type.
var bibEntryRe = regexp.MustCompile(`(?m)^\[(\d+)\]\s+(.+)$`)
var yearRe = regexp.MustCompile(`\b(19|20)\d{2}\b`)

func parseBibliography(referencesSection string) []types.Reference {
	if referencesSection == "" {
		return nil
	}
	matches := bibEntryRe.FindAllStringSubmatch(referencesSection, -1)
	refs := make([]types.Reference, 0, len(matches))
	for _, m := range matches {
		raw := strings.TrimSpace(m[2])
		ref := types.Reference{Key: m[1], Title: raw}
		if y := yearRe.FindString(raw); y != "" {
			ref.Year = y
		}
		refs = append(refs, ref)
	}
	return refs
}

// qualityScore combines four weighted signals into [0,1]: fraction of
// expected sections found, extracted-length-to-page ratio against a
// target band, presence of at least one reference, and the parse-error
// rate (errorRate is 0 here since a full panic already routes through
// zeroQualityResult).
func qualityScore(sections map[string]string, pageCount, charCount, refCount int, errorRate float64) float64 {
	found := 0
	for _, name := range expectedSections {
		if strings.TrimSpace(sections[name]) != "" {
			found++
		}
	}
	sectionFraction := float64(found) / float64(len(expectedSections))

	const targetCharsPerPage = 2000
	lengthRatio := 1.0
	if pageCount > 0 {
		actual := float64(charCount) / float64(pageCount)
		lengthRatio = actual / targetCharsPerPage
		if lengthRatio > 1 {
			lengthRatio = 1
		}
	}

	hasReferences := 0.0
	if refCount > 0 {
		hasReferences = 1.0
	}

	const (
		wSections   = 0.40
		wLength     = 0.25
		wReferences = 0.15
		wErrorRate  = 0.20
	)

	return wSections*sectionFraction + wLength*lengthRatio + wReferences*hasReferences + wErrorRate*(1-errorRate)
}
