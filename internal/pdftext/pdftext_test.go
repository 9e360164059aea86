// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pdftext

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

// buildMinimalPDF assembles a one-page PDF with a real xref table and
// trailer, computing every offset from what was actually written rather
// than hand-counted bytes, so it parses cleanly under a real PDF reader.
func buildMinimalPDF(streamContent string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	var offsets []int
	writeObj := func(n int, body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", n, body)
	}

	writeObj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	writeObj(3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
		"/Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>")
	writeObj(4, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(streamContent), streamContent))
	writeObj(5, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF", len(offsets)+1, xrefOffset)

	return buf.Bytes()
}

func TestExtractSimpleTj(t *testing.T) {
	pdf := buildMinimalPDF(`BT /F1 12 Tf 100 700 Td (Hello World) Tj ET`)
	text, pages, err := Extract(pdf)
	if err != nil {
		t.Fatal(err)
	}
	if pages != 1 {
		t.Errorf("pages = %d, want 1", pages)
	}
	if !strings.Contains(text, "Hello World") {
		t.Errorf("text = %q, want to contain %q", text, "Hello World")
	}
}

func TestExtractNeverPanics(t *testing.T) {
	malformed := []byte("not a pdf at all << stream endstream >>")
	if _, _, err := Extract(malformed); err == nil {
		t.Fatal("expected an error for malformed input, got nil")
	}
}

func TestExtractContentStreamTextTj(t *testing.T) {
	got := extractContentStreamText([]byte(`BT /F1 12 Tf (Hello World) Tj ET`))
	if !strings.Contains(got, "Hello World") {
		t.Errorf("extractContentStreamText = %q, want to contain %q", got, "Hello World")
	}
}

func TestExtractContentStreamTextArrayTJ(t *testing.T) {
	got := extractContentStreamText([]byte(`BT (Section) Tj T* [(One)(Two)] TJ ET`))
	if !strings.Contains(got, "Section") || !strings.Contains(got, "One") || !strings.Contains(got, "Two") {
		t.Errorf("extractContentStreamText = %q", got)
	}
	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != 2 {
		t.Errorf("got %d lines, want 2 (split on T*): %q", len(lines), got)
	}
}

func TestUnescape(t *testing.T) {
	tests := []struct{ in, want string }{
		{`hello`, "hello"},
		{`line1\nline2`, "line1\nline2"},
		{`a\(b\)c`, "a(b)c"},
		{`back\\slash`, `back\slash`},
	}
	for _, tt := range tests {
		if got := unescape([]byte(tt.in)); got != tt.want {
			t.Errorf("unescape(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	got := normalizeWhitespace("  foo  \n\n  bar\t\n   \nbaz  ")
	want := "foo\nbar\nbaz"
	if got != want {
		t.Errorf("normalizeWhitespace = %q, want %q", got, want)
	}
}
