// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pdiddy/research-engine/internal/htmlrescue"
	"github.com/pdiddy/research-engine/internal/httpclient"
	"github.com/pdiddy/research-engine/internal/ids"
	"github.com/pdiddy/research-engine/pkg/types"
)

const defaultMaxAttemptsPerPublication = 10

// FetchResult is P3's output: the full attempt log (for the audit
// trail) and, on success, the path and hash of the acquired PDF.
type FetchResult struct {
	Attempts []types.DownloadAttempt
	Success  bool
	FilePath string
	FileSize int64
	SHA256   string
	Source   string

	pendingBody []byte
}

// Fetch tries pub's accumulated URL list in priority order, validating
// each response as a PDF and falling back to a landing-page rescue once
// per URL. Writes to a temp file and renames atomically into place so a
// crash mid-download never leaves a partial PDF at the final path.
func Fetch(ctx context.Context, pub types.Publication, urls []types.URLDescriptor, datasetID string, relationship types.Relationship, pdfsRoot string, http *httpclient.Client, perURLDeadline time.Duration, maxAttempts int) FetchResult {
	if len(urls) == 0 {
		return FetchResult{}
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttemptsPerPublication
	}

	sorted := append([]types.URLDescriptor{}, urls...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	var result FetchResult
	attemptNumber := 1

	for _, u := range sorted {
		if attemptNumber > maxAttempts {
			break
		}
		attemptNumber = tryURL(ctx, u, attemptNumber, maxAttempts, perURLDeadline, http, &result)
		if result.Success {
			break
		}
	}

	if result.Success {
		path, size, sha, err := writePDF(pdfsRoot, datasetID, relationship, pub, result.pendingBody)
		if err != nil {
			result.Success = false
			result.Attempts = append(result.Attempts, types.DownloadAttempt{
				PublicationID: pub.ID, Source: result.Source, Status: types.DownloadFailed,
				Error: fmt.Sprintf("writing pdf: %v", err), AttemptNumber: attemptNumber,
			})
		} else {
			result.FilePath, result.FileSize, result.SHA256 = path, size, sha
			result.Attempts[len(result.Attempts)-1].FilePath = path
			result.Attempts[len(result.Attempts)-1].FileSize = size
		}
	}
	result.pendingBody = nil
	for i := range result.Attempts {
		result.Attempts[i].PublicationID = pub.ID
	}
	return result
}

// tryURL fetches one URL, appending a DownloadAttempt to result for
// every try including the landing-page rescue retry. Returns the next
// attempt number to use.
func tryURL(ctx context.Context, u types.URLDescriptor, attemptNumber, maxAttempts int, deadline time.Duration, http *httpclient.Client, result *FetchResult) int {
	body, statusErr := fetchBytes(ctx, u.URL, deadline, http)
	if statusErr != nil {
		result.Attempts = append(result.Attempts, types.DownloadAttempt{
			URL: u.URL, Source: u.Source, Status: types.DownloadFailed,
			Error: statusErr.Error(), AttemptNumber: attemptNumber,
		})
		return attemptNumber + 1
	}

	if err := ids.ValidatePDFBytes(body); err == nil {
		result.Success = true
		result.Source = u.Source
		result.pendingBody = body
		result.Attempts = append(result.Attempts, types.DownloadAttempt{
			URL: u.URL, Source: u.Source, Status: types.DownloadSuccess, AttemptNumber: attemptNumber,
		})
		return attemptNumber + 1
	}

	result.Attempts = append(result.Attempts, types.DownloadAttempt{
		URL: u.URL, Source: u.Source, Status: types.DownloadFailed,
		Error: "pdf validation failed", AttemptNumber: attemptNumber,
	})
	attemptNumber++

	if attemptNumber > maxAttempts || !looksLikeHTML(body) {
		return attemptNumber
	}

	link, ok := htmlrescue.FindPDFLink(body, u.URL)
	if !ok {
		return attemptNumber
	}

	rescued, err := fetchBytes(ctx, link, deadline, http)
	if err != nil {
		result.Attempts = append(result.Attempts, types.DownloadAttempt{
			URL: link, Source: u.Source, Status: types.DownloadFailed,
			Error: err.Error(), AttemptNumber: attemptNumber,
		})
		return attemptNumber + 1
	}
	if verr := ids.ValidatePDFBytes(rescued); verr == nil {
		result.Success = true
		result.Source = u.Source
		result.pendingBody = rescued
		result.Attempts = append(result.Attempts, types.DownloadAttempt{
			URL: link, Source: u.Source, Status: types.DownloadSuccess, AttemptNumber: attemptNumber,
		})
		return attemptNumber + 1
	}
	result.Attempts = append(result.Attempts, types.DownloadAttempt{
		URL: link, Source: u.Source, Status: types.DownloadFailed,
		Error: "rescued link also failed validation", AttemptNumber: attemptNumber,
	})
	return attemptNumber + 1
}

func fetchBytes(ctx context.Context, url string, deadline time.Duration, http *httpclient.Client) ([]byte, error) {
	cctx := ctx
	if deadline > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}
	res := http.Get(cctx, url, map[string]string{"Accept": "application/pdf"})
	if !res.Ok() {
		if res.Err != nil {
			return nil, res.Err
		}
		return nil, fmt.Errorf("http status %d", res.StatusCode)
	}
	return res.Body, nil
}

func looksLikeHTML(body []byte) bool {
	trimmed := strings.TrimSpace(string(body[:min(len(body), 512)]))
	lower := strings.ToLower(trimmed)
	return strings.HasPrefix(lower, "<!doctype") || strings.HasPrefix(lower, "<html")
}

// writePDF hashes body and writes it to the content-addressed layout via
// a temp file in the destination directory followed by os.Rename, so a
// reader never observes a partially-written PDF.
func writePDF(pdfsRoot, datasetID string, relationship types.Relationship, pub types.Publication, body []byte) (path string, size int64, sha string, err error) {
	dir := filepath.Join(pdfsRoot, datasetID, string(relationship))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, "", fmt.Errorf("creating pdf directory %s: %w", dir, err)
	}

	dest := filepath.Join(dir, ids.UniversalID(pub)+".pdf")

	tmp, err := os.CreateTemp(dir, ".fetch-*.tmp")
	if err != nil {
		return "", 0, "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, werr := tmp.Write(body); werr != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", 0, "", fmt.Errorf("writing pdf: %w", werr)
	}
	if cerr := tmp.Close(); cerr != nil {
		os.Remove(tmpPath)
		return "", 0, "", fmt.Errorf("closing temp file: %w", cerr)
	}
	if rerr := os.Rename(tmpPath, dest); rerr != nil {
		os.Remove(tmpPath)
		return "", 0, "", fmt.Errorf("renaming temp file: %w", rerr)
	}

	h := sha256.Sum256(body)
	return dest, int64(len(body)), fmt.Sprintf("%x", h[:]), nil
}
