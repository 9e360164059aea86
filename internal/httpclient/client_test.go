// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httpclient

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pdiddy/research-engine/pkg/types"
)

func TestClientGetSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	c := New(5 * time.Second)
	result := c.Get(t.Context(), srv.URL, nil)
	if !result.Ok() {
		t.Fatalf("Get() not ok: %+v", result)
	}
	if string(result.Body) != "hello" {
		t.Errorf("Get() body = %q, want %q", result.Body, "hello")
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("Get() status = %d, want %d", result.StatusCode, http.StatusOK)
	}
}

func TestClientGetRetriesOn429(t *testing.T) {
	RetryBaseDelay = time.Millisecond
	defer func() { RetryBaseDelay = 2 * time.Second }()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(5*time.Second, WithRetryConfig(types.RetryConfig{
		BaseDelay:  time.Millisecond,
		Factor:     2,
		MaxRetries: 5,
	}))
	result := c.Get(t.Context(), srv.URL, nil)
	if !result.Ok() {
		t.Fatalf("Get() not ok after retries: %+v", result)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestClientGetGivesUpAfterMaxRetries(t *testing.T) {
	RetryBaseDelay = time.Millisecond

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(5*time.Second, WithRetryConfig(types.RetryConfig{
		BaseDelay:  time.Millisecond,
		Factor:     2,
		MaxRetries: 2,
	}))
	result := c.Get(t.Context(), srv.URL, nil)
	if result.Err == nil {
		t.Fatal("Get() expected error after exhausting retries")
	}
}

func TestClientGetHeaders(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(5*time.Second, WithUserAgent("test-agent/1.0"))
	c.Get(t.Context(), srv.URL, nil)
	if gotUA != "test-agent/1.0" {
		t.Errorf("User-Agent = %q, want %q", gotUA, "test-agent/1.0")
	}
}

func TestClientGetRetriesOn408(t *testing.T) {
	RetryBaseDelay = time.Millisecond
	defer func() { RetryBaseDelay = 2 * time.Second }()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 1 {
			w.WriteHeader(http.StatusRequestTimeout)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(5*time.Second, WithRetryConfig(types.RetryConfig{
		BaseDelay:  time.Millisecond,
		Factor:     2,
		MaxRetries: 3,
	}))
	result := c.Get(t.Context(), srv.URL, nil)
	if !result.Ok() {
		t.Fatalf("Get() not ok after 408 retry: %+v", result)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestClientGetSetsHTTPStatusKind(t *testing.T) {
	RetryBaseDelay = time.Millisecond
	defer func() { RetryBaseDelay = 2 * time.Second }()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(5*time.Second, WithRetryConfig(types.RetryConfig{
		BaseDelay:  time.Millisecond,
		Factor:     2,
		MaxRetries: 1,
	}))
	result := c.Get(t.Context(), srv.URL, nil)
	if result.Kind != KindHTTPStatus {
		t.Errorf("Kind = %q, want %q", result.Kind, KindHTTPStatus)
	}
}

func TestClientGetFinalURLFollowsRedirect(t *testing.T) {
	var target string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, target+"/end", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	target = srv.URL

	c := New(5 * time.Second)
	result := c.Get(t.Context(), srv.URL+"/start", nil)
	if !result.Ok() {
		t.Fatalf("Get() not ok: %+v", result)
	}
	if result.FinalURL != srv.URL+"/end" {
		t.Errorf("FinalURL = %q, want %q", result.FinalURL, srv.URL+"/end")
	}
}

func TestHostGroup(t *testing.T) {
	tests := []struct{ in, want string }{
		{"www.crossref.org", "crossref.org"},
		{"api.crossref.org", "api.crossref.org"},
		{"eutils.ncbi.nlm.nih.gov", "eutils.ncbi.nlm.nih.gov"},
	}
	for _, tt := range tests {
		if got := hostGroup(tt.in); got != tt.want {
			t.Errorf("hostGroup(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
