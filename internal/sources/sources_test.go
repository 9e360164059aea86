// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pdiddy/research-engine/internal/httpclient"
	"github.com/pdiddy/research-engine/pkg/types"
)

const sampleGEOMiniml = `<?xml version="1.0"?>
<MINiML>
  <Series>
    <title>Expression profiling of tumor samples</title>
    <status><submission-date>2021-03-01</submission-date></status>
    <Sample-Ref iid="GSM1"/>
    <Sample-Ref iid="GSM2"/>
    <Platform><organism>Homo sapiens</organism></Platform>
  </Series>
</MINiML>`

func TestCatalogFetchDataset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(sampleGEOMiniml))
	}))
	defer srv.Close()

	restore := geoCatalogBase
	geoCatalogBase = srv.URL
	defer func() { geoCatalogBase = restore }()

	c := NewCatalogClient(httpclient.New(5 * time.Second))
	result := c.FetchDataset(t.Context(), "GSE189158")
	if !result.Ok() {
		t.Fatalf("FetchDataset() not ok: %+v", result)
	}
	if result.Value.Title != "Expression profiling of tumor samples" {
		t.Errorf("Title = %q", result.Value.Title)
	}
	if result.Value.SampleCount != 2 {
		t.Errorf("SampleCount = %d, want 2", result.Value.SampleCount)
	}
}

func TestCatalogFetchDatasetSkipsEmptyID(t *testing.T) {
	c := NewCatalogClient(httpclient.New(5 * time.Second))
	result := c.FetchDataset(t.Context(), "")
	if result.Skipped == "" {
		t.Fatal("FetchDataset(\"\") expected Skipped")
	}
}

const samplePubmedArticleSet = `<?xml version="1.0"?>
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation>
      <PMID>28393431</PMID>
      <Article>
        <ArticleTitle>A Study of Something</ArticleTitle>
        <Journal>
          <Title>Nature</Title>
          <JournalIssue><PubDate><Year>2017</Year></PubDate></JournalIssue>
        </Journal>
        <AuthorList>
          <Author><LastName>Smith</LastName><ForeName>Jane</ForeName></Author>
        </AuthorList>
      </Article>
    </MedlineCitation>
    <PubmedData>
      <ArticleIdList>
        <ArticleId IdType="doi">10.1038/nature12345</ArticleId>
        <ArticleId IdType="pmc">PMC5432109</ArticleId>
      </ArticleIdList>
    </PubmedData>
  </PubmedArticle>
</PubmedArticleSet>`

func TestPMIDFetchBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(samplePubmedArticleSet))
	}))
	defer srv.Close()

	restore := pubmedEFetchBase
	pubmedEFetchBase = srv.URL
	defer func() { pubmedEFetchBase = restore }()

	c := NewPMIDClient(httpclient.New(5*time.Second), "")
	result := c.FetchBatch(t.Context(), []string{"28393431"})
	if !result.Ok() {
		t.Fatalf("FetchBatch() not ok: %+v", result)
	}
	if len(result.Value) != 1 {
		t.Fatalf("FetchBatch() returned %d publications, want 1", len(result.Value))
	}
	pub := result.Value[0]
	if pub.DOI != "10.1038/nature12345" || pub.PMCID != "PMC5432109" || pub.Year != 2017 {
		t.Errorf("FetchBatch() publication = %+v", pub)
	}
}

func TestPMIDFetchBatchRejectsOversizedBatch(t *testing.T) {
	ids := make([]string, maxPMIDsPerBatch+1)
	for i := range ids {
		ids[i] = "1"
	}
	c := NewPMIDClient(httpclient.New(5 * time.Second), "")
	result := c.FetchBatch(t.Context(), ids)
	if result.Err == nil {
		t.Fatal("FetchBatch() expected error for oversized batch")
	}
}

func TestOpenAlexCitationsSkipsWithoutDOI(t *testing.T) {
	c := NewOpenAlexCitations(httpclient.New(5*time.Second), "")
	result := c.GetCitations(t.Context(), types.Publication{PMID: "1"})
	if result.Skipped == "" {
		t.Fatal("GetCitations() expected Skipped without DOI")
	}
}

const sampleOpenAlexWorks = `{
  "results": [
    {"id": "https://openalex.org/W1", "doi": "https://doi.org/10.1/citing-1", "title": "Citing Paper", "publication_year": 2022}
  ]
}`

func TestOpenAlexCitationsGetCitations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(sampleOpenAlexWorks))
	}))
	defer srv.Close()

	restore := openAlexCitesBase
	openAlexCitesBase = srv.URL
	defer func() { openAlexCitesBase = restore }()

	c := NewOpenAlexCitations(httpclient.New(5*time.Second), "ops@example.invalid")
	result := c.GetCitations(t.Context(), types.Publication{DOI: "10.1/seed"})
	if !result.Ok() {
		t.Fatalf("GetCitations() not ok: %+v", result)
	}
	if len(result.Value) != 1 || result.Value[0].DOI != "10.1/citing-1" {
		t.Errorf("GetCitations() = %+v", result.Value)
	}
}

func TestPMCSourceSkipsWithoutIdentifiers(t *testing.T) {
	c := NewPMCSource(httpclient.New(5 * time.Second))
	result := c.GetURLs(t.Context(), types.Publication{})
	if result.Skipped == "" {
		t.Fatal("GetURLs() expected Skipped without PMC ID or PMID")
	}
}

func TestPMCSourceDirectFromPMCID(t *testing.T) {
	c := NewPMCSource(httpclient.New(5 * time.Second))
	result := c.GetURLs(t.Context(), types.Publication{PMCID: "PMC5432109"})
	if !result.Ok() {
		t.Fatalf("GetURLs() not ok: %+v", result)
	}
	if len(result.Value) != 2 {
		t.Fatalf("GetURLs() returned %d descriptors, want 2", len(result.Value))
	}
	if result.Value[0].Shape != types.ShapePDFDirect {
		t.Errorf("GetURLs()[0].Shape = %v, want pdf_direct", result.Value[0].Shape)
	}
}

func TestUnpaywallSourceSkipsWithoutEmail(t *testing.T) {
	c := NewUnpaywallSource(httpclient.New(5*time.Second), "")
	result := c.GetURLs(t.Context(), types.Publication{DOI: "10.1/x"})
	if result.Skipped == "" {
		t.Fatal("GetURLs() expected Skipped without configured email")
	}
}

const sampleUnpaywallResponse = `{
  "best_oa_location": {"url": "https://example.com/landing", "url_for_pdf": "https://example.com/paper.pdf"},
  "oa_locations": [{"url_for_pdf": "https://mirror.example.com/paper.pdf"}]
}`

func TestUnpaywallSourceGetURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(sampleUnpaywallResponse))
	}))
	defer srv.Close()

	restore := unpaywallBase
	unpaywallBase = srv.URL
	defer func() { unpaywallBase = restore }()

	c := NewUnpaywallSource(httpclient.New(5*time.Second), "ops@example.invalid")
	result := c.GetURLs(t.Context(), types.Publication{DOI: "10.1/x"})
	if !result.Ok() {
		t.Fatalf("GetURLs() not ok: %+v", result)
	}
	if len(result.Value) != 3 {
		t.Fatalf("GetURLs() returned %d descriptors, want 3", len(result.Value))
	}
}

func TestBiorxivArxivSource(t *testing.T) {
	c := NewBiorxivArxivSource()

	skip := c.GetURLs(t.Context(), types.Publication{})
	if skip.Skipped == "" {
		t.Fatal("GetURLs() expected Skipped without arXiv id")
	}

	result := c.GetURLs(t.Context(), types.Publication{ArxivID: "2301.07041"})
	if !result.Ok() || len(result.Value) != 1 {
		t.Fatalf("GetURLs() = %+v", result)
	}
	if result.Value[0].URL != "https://arxiv.org/pdf/2301.07041" {
		t.Errorf("GetURLs()[0].URL = %q", result.Value[0].URL)
	}
}

func TestGraySourcesDisabledByDefault(t *testing.T) {
	scihub := NewSciHubSource(httpclient.New(5*time.Second), "https://sci-hub.example", false)
	if r := scihub.GetURLs(t.Context(), types.Publication{DOI: "10.1/x"}); r.Skipped == "" {
		t.Fatal("scihub GetURLs() expected Skipped when disabled")
	}

	libgen := NewLibgenSource(httpclient.New(5*time.Second), "https://libgen.example", false)
	if r := libgen.GetURLs(t.Context(), types.Publication{DOI: "10.1/x"}); r.Skipped == "" {
		t.Fatal("libgen GetURLs() expected Skipped when disabled")
	}
}

func TestCrossrefResolverShape(t *testing.T) {
	c := NewCrossrefResolver()
	result := c.GetURLs(t.Context(), types.Publication{DOI: "10.1/x"})
	if !result.Ok() || result.Value[0].Shape != types.ShapeDOIResolver {
		t.Fatalf("GetURLs() = %+v", result)
	}
}
