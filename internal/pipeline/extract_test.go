// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// fakePDFBytes builds a minimal single-page PDF whose content stream
// shows each of lines via its own Tj operator separated by T*, the same
// shape internal/pdftext's Extract is grounded to parse.
func fakePDFBytes(lines []string) []byte {
	var sb strings.Builder
	sb.WriteString("BT\n")
	for _, line := range lines {
		sb.WriteString("(" + escapePDFString(line) + ") Tj\n")
		sb.WriteString("T*\n")
	}
	sb.WriteString("ET")
	content := sb.String()
	return []byte("%PDF-1.4\n" +
		"1 0 obj\n<< /Type /Page /Parent 2 0 R >>\nendobj\n" +
		"2 0 obj\n<< /Type /Pages /Kids [1 0 R] >>\nendobj\n" +
		"3 0 obj\n<< /Length " + strconv.Itoa(len(content)) + " >>\nstream\n" + content + "\nendstream\nendobj\n" +
		"%%EOF")
}

func escapePDFString(s string) string {
	return strings.NewReplacer("\\", "\\\\", "(", "\\(", ")", "\\)").Replace(s)
}

func writeFakePDF(t *testing.T, text string) string {
	t.Helper()
	data := fakePDFBytes(strings.Split(text, "\n"))
	path := filepath.Join(t.TempDir(), "paper.pdf")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing fake pdf: %v", err)
	}
	return path
}

func TestExtractProducesSectionsAndQualityScore(t *testing.T) {
	text := "Abstract\nThis is the abstract.\n" +
		"Introduction\nSome background.\n" +
		"Methods\nHow it was done.\n" +
		"Results\nWhat was found.\n" +
		"Discussion\nWhat it means.\n" +
		"References\n[1] Smith J. A Paper. Journal, 2019.\n"

	path := writeFakePDF(t, text)
	result := Extract("GSE1", 1, path, "deadbeef")

	if result.ParseError != "" {
		t.Fatalf("unexpected parse error: %s", result.ParseError)
	}
	if result.Extraction.Sections["abstract"] == "" {
		t.Fatalf("expected abstract section to be populated, got %+v", result.Extraction.Sections)
	}
	if len(result.Extraction.References) != 1 {
		t.Fatalf("expected 1 parsed reference, got %+v", result.Extraction.References)
	}
	if result.Extraction.QualityScore <= 0 {
		t.Fatalf("expected a positive quality score, got %f", result.Extraction.QualityScore)
	}
	if result.Extraction.PDFSHA256 != "deadbeef" {
		t.Fatalf("expected sha256 passed through, got %q", result.Extraction.PDFSHA256)
	}
}

func TestExtractMissingFileReturnsZeroQuality(t *testing.T) {
	result := Extract("GSE1", 1, "/nonexistent/path.pdf", "sha")
	if result.ParseError == "" {
		t.Fatalf("expected a parse error for a missing file")
	}
	if result.Extraction.QualityScore != 0 {
		t.Fatalf("expected zero quality score, got %f", result.Extraction.QualityScore)
	}
	if result.Extraction.QualityGrade != "F" {
		t.Fatalf("expected grade F, got %s", result.Extraction.QualityGrade)
	}
}

func TestChunkByHeadingsBucketsKnownSynonyms(t *testing.T) {
	sections := chunkByHeadings("Background\nSetup text.\nConclusion\nWrap up.\n")
	if !strings.Contains(sections["introduction"], "Setup text") {
		t.Fatalf("expected Background to bucket under introduction, got %+v", sections)
	}
	if !strings.Contains(sections["discussion"], "Wrap up") {
		t.Fatalf("expected Conclusion to bucket under discussion, got %+v", sections)
	}
}

func TestParseBibliographyExtractsYear(t *testing.T) {
	refs := parseBibliography("[1] Doe J. Some Study. Cell, 2021.\n[2] Roe A. Other Study. 2018.\n")
	if len(refs) != 2 {
		t.Fatalf("expected 2 references, got %d", len(refs))
	}
	if refs[0].Year != "2021" {
		t.Fatalf("expected year 2021 extracted, got %q", refs[0].Year)
	}
}

func TestQualityScoreRewardsCompleteSections(t *testing.T) {
	full := map[string]string{
		"abstract": "a", "introduction": "b", "methods": "c",
		"results": "d", "discussion": "e", "references": "f",
	}
	empty := map[string]string{}

	fullScore := qualityScore(full, 4, 8000, 1, 0)
	emptyScore := qualityScore(empty, 4, 0, 0, 0)

	if fullScore <= emptyScore {
		t.Fatalf("expected complete extraction to score higher: full=%f empty=%f", fullScore, emptyScore)
	}
}
