// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pdftext pulls a linear text layout out of a PDF. It leans on
// pdfcpu for the PDF object model — page counting, decryption checks,
// and per-page content-stream decompression — the same split quaero's
// pdf.Extractor uses, since pdfcpu itself has no text-extraction call:
// ExtractContentFile only hands back each page's raw, decoded content
// stream. This package supplies the missing half: scanning that stream
// for Tj/TJ string-showing operators to recover the text the stream
// paints onto the page. Not a faithful layout engine — enough to feed
// P4's heading-based section chunker. See DESIGN.md for the fuller
// account of the split.
package pdftext

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var (
	tjStringRe  = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)\s*Tj`)
	ttArrayRe   = regexp.MustCompile(`\[((?:[^\[\]\\]|\\.)*)\]\s*TJ`)
	arrayPartRe = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)`)
	lineOpRe    = regexp.MustCompile(`\bT(?:[dD]\b|\*)`)
	escapeRe    = regexp.MustCompile(`\\([()\\nrtbf])`)
	pageFileRe  = regexp.MustCompile(`(\d+)`)
)

// Extract decodes the readable text and counts pages in a PDF byte
// stream. It never panics: any parsing fault is recovered and surfaces
// as a non-nil error, so a caller can still persist a zero-quality
// extraction row.
func Extract(data []byte) (text string, pageCount int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdftext: recovered panic: %v", r)
		}
	}()

	tempFile, cleanup, err := writeTemp(data)
	if err != nil {
		return "", 0, fmt.Errorf("pdftext: stage input: %w", err)
	}
	defer cleanup()

	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return "", 0, fmt.Errorf("pdftext: read pdf context: %w", err)
	}
	pageCount = ctx.PageCount
	if pageCount == 0 {
		pageCount = 1
	}
	if ctx.Encrypt != nil {
		return "", pageCount, fmt.Errorf("pdftext: encrypted pdf not supported")
	}

	outDir, err := os.MkdirTemp("", "pdftext-content-*")
	if err != nil {
		return "", pageCount, fmt.Errorf("pdftext: stage output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	if err := api.ExtractContentFile(tempFile, outDir, nil, conf); err != nil {
		return "", pageCount, fmt.Errorf("pdftext: extract content streams: %w", err)
	}

	streams, err := readPageStreams(outDir)
	if err != nil {
		return "", pageCount, fmt.Errorf("pdftext: read content streams: %w", err)
	}

	var sb strings.Builder
	for _, stream := range streams {
		sb.WriteString(extractContentStreamText(stream))
		sb.WriteByte('\n')
	}

	return normalizeWhitespace(sb.String()), pageCount, nil
}

func writeTemp(data []byte) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp("", "pdftext-input-*.pdf")
	if err != nil {
		return "", nil, err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		os.Remove(f.Name())
		return "", nil, err
	}
	return f.Name(), func() { os.Remove(f.Name()) }, nil
}

// readPageStreams reads ExtractContentFile's per-page output back in
// page order. pdfcpu names each file "<basename>_page_N.txt".
func readPageStreams(dir string) ([][]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type numbered struct {
		n    int
		data []byte
	}
	var files []numbered
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		matches := pageFileRe.FindAllString(e.Name(), -1)
		if len(matches) == 0 {
			continue
		}
		n, err := strconv.Atoi(matches[len(matches)-1])
		if err != nil {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		files = append(files, numbered{n: n, data: content})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].n < files[j].n })

	out := make([][]byte, len(files))
	for i, f := range files {
		out[i] = f.data
	}
	return out, nil
}

// extractContentStreamText pulls Tj/TJ string-showing operators out of a
// decoded page content stream, inserting a newline wherever a
// text-positioning operator (Td, TD, T*) appears between shows.
func extractContentStreamText(stream []byte) string {
	var sb strings.Builder
	cursor := 0
	for cursor < len(stream) {
		tj := tjStringRe.FindSubmatchIndex(stream[cursor:])
		tt := ttArrayRe.FindSubmatchIndex(stream[cursor:])
		ln := lineOpRe.FindIndex(stream[cursor:])

		next, kind := nearest(tj, tt, ln)
		if kind == "" {
			break
		}
		_ = next

		switch kind {
		case "tj":
			raw := stream[cursor:][tj[2]:tj[3]]
			sb.WriteString(unescape(raw))
			sb.WriteByte(' ')
			cursor += tj[1]
		case "tt":
			raw := stream[cursor:][tt[2]:tt[3]]
			for _, part := range arrayPartRe.FindAllSubmatch(raw, -1) {
				sb.WriteString(unescape(part[1]))
			}
			sb.WriteByte(' ')
			cursor += tt[1]
		case "ln":
			sb.WriteByte('\n')
			cursor += ln[1]
		}
	}
	return sb.String()
}

func nearest(tj, tt, ln []int) ([]int, string) {
	best := -1
	kind := ""
	consider := func(idx []int, k string) {
		if idx == nil {
			return
		}
		if best == -1 || idx[0] < best {
			best = idx[0]
			kind = k
		}
	}
	consider(tj, "tj")
	consider(tt, "tt")
	consider(ln, "ln")
	switch kind {
	case "tj":
		return tj, kind
	case "tt":
		return tt, kind
	case "ln":
		return ln, kind
	default:
		return nil, ""
	}
}

func unescape(raw []byte) string {
	return escapeRe.ReplaceAllStringFunc(string(raw), func(m string) string {
		switch m[1] {
		case '(', ')', '\\':
			return string(m[1])
		case 'n':
			return "\n"
		case 'r':
			return "\r"
		case 't':
			return "\t"
		default:
			return ""
		}
	})
}

func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
