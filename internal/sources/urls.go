// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pdiddy/research-engine/internal/httpclient"
	"github.com/pdiddy/research-engine/internal/ids"
	"github.com/pdiddy/research-engine/pkg/types"
)

// URLSource is implemented by every provider that can propose download
// URLs for a publication.
type URLSource interface {
	Name() string
	GetURLs(ctx context.Context, pub types.Publication) Result[[]types.URLDescriptor]
}

func descriptor(url, source string, priority int, shape types.URLShape) types.URLDescriptor {
	return types.URLDescriptor{
		URL:      url,
		Source:   source,
		Priority: priority,
		Shape:    shape,
	}
}

// --- PMC ------------------------------------------------------------

var pmcIDConverterBase = "https://www.ncbi.nlm.nih.gov/pmc/utils/idconv/v1.0/"

// PMCSource yields PMC's HTTPS article PDF URL and article HTML page. If
// the publication only has a PMID, it first converts it to a PMC ID via
// NCBI's ID converter.
type PMCSource struct {
	http *httpclient.Client
}

func NewPMCSource(client *httpclient.Client) *PMCSource {
	return &PMCSource{http: client}
}

func (s *PMCSource) Name() string { return "pmc" }

type idConvRecord struct {
	PMCID string `json:"pmcid"`
}
type idConvResponse struct {
	Records []idConvRecord `json:"records"`
}

func (s *PMCSource) resolvePMCID(ctx context.Context, pmid string) (string, error) {
	url := fmt.Sprintf("%s?ids=%s&format=json", pmcIDConverterBase, pmid)
	resp := s.http.Get(ctx, url, nil)
	if resp.Err != nil {
		return "", resp.Err
	}
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("http %d", resp.StatusCode)
	}
	var body idConvResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return "", err
	}
	if len(body.Records) == 0 || body.Records[0].PMCID == "" {
		return "", nil
	}
	return body.Records[0].PMCID, nil
}

func (s *PMCSource) GetURLs(ctx context.Context, pub types.Publication) Result[[]types.URLDescriptor] {
	pmcID := pub.PMCID
	if pmcID == "" {
		if pub.PMID == "" {
			return Skip[[]types.URLDescriptor]("no PMC ID or PMID")
		}
		resolved, err := s.resolvePMCID(ctx, pub.PMID)
		if err != nil {
			return Fail[[]types.URLDescriptor](fmt.Errorf("sources: pmc id conversion: %w", err))
		}
		if resolved == "" {
			return Skip[[]types.URLDescriptor]("no PMC record for this PMID")
		}
		pmcID = resolved
	}

	out := []types.URLDescriptor{
		descriptor(fmt.Sprintf("https://www.ncbi.nlm.nih.gov/pmc/articles/%s/pdf/", pmcID), s.Name(), 1, types.ShapePDFDirect),
		descriptor(fmt.Sprintf("https://www.ncbi.nlm.nih.gov/pmc/articles/%s/", pmcID), s.Name(), 3, types.ShapeHTMLFulltext),
	}
	return Success(out)
}

// --- Unpaywall --------------------------------------------------------

var unpaywallBase = "https://api.unpaywall.org/v2"

// UnpaywallSource looks up open-access locations by DOI.
type UnpaywallSource struct {
	http  *httpclient.Client
	email string
}

func NewUnpaywallSource(client *httpclient.Client, email string) *UnpaywallSource {
	return &UnpaywallSource{http: client, email: email}
}

func (s *UnpaywallSource) Name() string { return "unpaywall" }

type unpaywallLocation struct {
	URL       string `json:"url"`
	URLForPDF string `json:"url_for_pdf"`
}
type unpaywallResponse struct {
	BestOALocation *unpaywallLocation  `json:"best_oa_location"`
	OALocations    []unpaywallLocation `json:"oa_locations"`
}

func (s *UnpaywallSource) GetURLs(ctx context.Context, pub types.Publication) Result[[]types.URLDescriptor] {
	if pub.DOI == "" {
		return Skip[[]types.URLDescriptor]("no DOI")
	}
	if s.email == "" {
		return Skip[[]types.URLDescriptor]("unpaywall email not configured")
	}

	url := fmt.Sprintf("%s/%s?email=%s", unpaywallBase, pub.DOI, s.email)
	resp := s.http.Get(ctx, url, nil)
	if resp.Err != nil {
		return Fail[[]types.URLDescriptor](fmt.Errorf("sources: unpaywall: %w", resp.Err))
	}
	if resp.StatusCode == 404 {
		return Success[[]types.URLDescriptor](nil)
	}
	if resp.StatusCode != 200 {
		return Failf[[]types.URLDescriptor]("sources: unpaywall: http %d", resp.StatusCode)
	}

	var body unpaywallResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return Fail[[]types.URLDescriptor](fmt.Errorf("sources: unpaywall parse: %w", err))
	}

	var out []types.URLDescriptor
	if body.BestOALocation != nil {
		if body.BestOALocation.URLForPDF != "" {
			out = append(out, descriptor(body.BestOALocation.URLForPDF, s.Name(), 1, types.ShapePDFDirect))
		}
		if body.BestOALocation.URL != "" {
			out = append(out, descriptor(body.BestOALocation.URL, s.Name(), 2, ids.ClassifyURLShape(body.BestOALocation.URL)))
		}
	}
	for _, loc := range body.OALocations {
		if loc.URLForPDF != "" {
			out = append(out, descriptor(loc.URLForPDF, s.Name(), 3, types.ShapePDFDirect))
		}
	}
	return Success(out)
}

// --- CORE --------------------------------------------------------------

var coreAPIBase = "https://api.core.ac.uk/v3/search/works"

// CORESource queries the CORE aggregator by DOI.
type CORESource struct {
	http   *httpclient.Client
	apiKey string
}

func NewCORESource(client *httpclient.Client, apiKey string) *CORESource {
	return &CORESource{http: client, apiKey: apiKey}
}

func (s *CORESource) Name() string { return "core" }

type coreSearchResponse struct {
	Results []struct {
		DownloadURL string `json:"downloadUrl"`
	} `json:"results"`
}

func (s *CORESource) GetURLs(ctx context.Context, pub types.Publication) Result[[]types.URLDescriptor] {
	if pub.DOI == "" {
		return Skip[[]types.URLDescriptor]("no DOI")
	}
	if s.apiKey == "" {
		return Skip[[]types.URLDescriptor]("core api key not configured")
	}

	url := fmt.Sprintf("%s?q=doi:%q", coreAPIBase, pub.DOI)
	headers := map[string]string{"Authorization": "Bearer " + s.apiKey}
	resp := s.http.Get(ctx, url, headers)
	if resp.Err != nil {
		return Fail[[]types.URLDescriptor](fmt.Errorf("sources: core: %w", resp.Err))
	}
	if resp.StatusCode != 200 {
		return Failf[[]types.URLDescriptor]("sources: core: http %d", resp.StatusCode)
	}

	var body coreSearchResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return Fail[[]types.URLDescriptor](fmt.Errorf("sources: core parse: %w", err))
	}

	var out []types.URLDescriptor
	for _, r := range body.Results {
		if r.DownloadURL != "" {
			out = append(out, descriptor(r.DownloadURL, s.Name(), 2, types.ShapePDFDirect))
		}
	}
	return Success(out)
}

// --- OpenAlex OA -------------------------------------------------------

// OpenAlexOA looks up the best open-access location via OpenAlex, the
// same API OpenAlexCitations queries but a distinct client instance
// scoped to a single work lookup by DOI.
type OpenAlexOA struct {
	http  *httpclient.Client
	email string
}

func NewOpenAlexOA(client *httpclient.Client, email string) *OpenAlexOA {
	return &OpenAlexOA{http: client, email: email}
}

func (s *OpenAlexOA) Name() string { return "openalex_oa" }

func (s *OpenAlexOA) GetURLs(ctx context.Context, pub types.Publication) Result[[]types.URLDescriptor] {
	if pub.DOI == "" {
		return Skip[[]types.URLDescriptor]("no DOI")
	}

	apiURL := "https://api.openalex.org/works/https://doi.org/" + pub.DOI
	if s.email != "" {
		apiURL += "?mailto=" + s.email
	}

	resp := s.http.Get(ctx, apiURL, nil)
	if resp.Err != nil {
		return Fail[[]types.URLDescriptor](fmt.Errorf("sources: openalex oa: %w", resp.Err))
	}
	if resp.StatusCode != 200 {
		return Failf[[]types.URLDescriptor]("sources: openalex oa: http %d", resp.StatusCode)
	}

	var body openAlexResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return Fail[[]types.URLDescriptor](fmt.Errorf("sources: openalex oa parse: %w", err))
	}
	if body.BestOALocation == nil {
		return Success[[]types.URLDescriptor](nil)
	}

	var out []types.URLDescriptor
	if body.BestOALocation.PDFURL != "" {
		out = append(out, descriptor(body.BestOALocation.PDFURL, s.Name(), 1, types.ShapePDFDirect))
	}
	if body.BestOALocation.LandingURL != "" {
		out = append(out, descriptor(body.BestOALocation.LandingURL, s.Name(), 3, types.ShapeLandingPage))
	}
	return Success(out)
}

type openAlexResponse struct {
	BestOALocation *openAlexLocation `json:"best_oa_location"`
}
type openAlexLocation struct {
	PDFURL     string `json:"pdf_url"`
	LandingURL string `json:"landing_page_url"`
}

// --- bioRxiv/arXiv direct -----------------------------------------------

// BiorxivArxivSource builds direct preprint PDF URLs from an arXiv ID
// without any network call — preprint servers publish predictable PDF
// paths.
type BiorxivArxivSource struct{}

func NewBiorxivArxivSource() *BiorxivArxivSource { return &BiorxivArxivSource{} }

func (s *BiorxivArxivSource) Name() string { return "biorxiv_arxiv" }

func (s *BiorxivArxivSource) GetURLs(ctx context.Context, pub types.Publication) Result[[]types.URLDescriptor] {
	if pub.ArxivID == "" {
		return Skip[[]types.URLDescriptor]("no arXiv id")
	}
	out := []types.URLDescriptor{
		descriptor(fmt.Sprintf("https://arxiv.org/pdf/%s", pub.ArxivID), s.Name(), 1, types.ShapePDFDirect),
	}
	return Success(out)
}

// --- Crossref resolver ---------------------------------------------------

// CrossrefResolver proposes the bare DOI resolver URL, classified
// doi_resolver — it exists purely as a last-chain fallback that a
// landing-page rescue or redirect can still resolve.
type CrossrefResolver struct{}

func NewCrossrefResolver() *CrossrefResolver { return &CrossrefResolver{} }

func (s *CrossrefResolver) Name() string { return "crossref" }

func (s *CrossrefResolver) GetURLs(ctx context.Context, pub types.Publication) Result[[]types.URLDescriptor] {
	if pub.DOI == "" {
		return Skip[[]types.URLDescriptor]("no DOI")
	}
	out := []types.URLDescriptor{
		descriptor("https://doi.org/"+pub.DOI, s.Name(), 4, types.ShapeDOIResolver),
	}
	return Success(out)
}

// --- Institutional proxy -------------------------------------------------

// InstitutionalProxySource rewrites the DOI resolver URL through the
// configured institutional proxy gateway.
type InstitutionalProxySource struct {
	proxyURL string
}

func NewInstitutionalProxySource(proxyURL string) *InstitutionalProxySource {
	return &InstitutionalProxySource{proxyURL: proxyURL}
}

func (s *InstitutionalProxySource) Name() string { return "institutional" }

func (s *InstitutionalProxySource) GetURLs(ctx context.Context, pub types.Publication) Result[[]types.URLDescriptor] {
	if s.proxyURL == "" {
		return Skip[[]types.URLDescriptor]("no institutional proxy configured")
	}
	if pub.DOI == "" {
		return Skip[[]types.URLDescriptor]("no DOI")
	}
	target := fmt.Sprintf("%s/login?url=%s", strings.TrimRight(s.proxyURL, "/"), "https://doi.org/"+pub.DOI)
	out := []types.URLDescriptor{
		{URL: target, Source: s.Name(), Priority: 3, Shape: types.ShapeDOIResolver, RequiresAuth: true},
	}
	return Success(out)
}

// --- Gray-area fallbacks -------------------------------------------------

// SciHubSource and LibgenSource are config-gated fallbacks disabled by
// default; the default source table lists them at FALLBACK priority, and
// enabling them is an explicit operator decision.

type SciHubSource struct {
	http    *httpclient.Client
	mirror  string
	enabled bool
}

func NewSciHubSource(client *httpclient.Client, mirror string, enabled bool) *SciHubSource {
	return &SciHubSource{http: client, mirror: mirror, enabled: enabled}
}

func (s *SciHubSource) Name() string { return "scihub" }

func (s *SciHubSource) GetURLs(ctx context.Context, pub types.Publication) Result[[]types.URLDescriptor] {
	if !s.enabled {
		return Skip[[]types.URLDescriptor]("scihub disabled by configuration")
	}
	if pub.DOI == "" {
		return Skip[[]types.URLDescriptor]("no DOI")
	}
	out := []types.URLDescriptor{
		descriptor(strings.TrimRight(s.mirror, "/")+"/"+pub.DOI, s.Name(), 5, types.ShapeLandingPage),
	}
	return Success(out)
}

type LibgenSource struct {
	http    *httpclient.Client
	mirror  string
	enabled bool
}

func NewLibgenSource(client *httpclient.Client, mirror string, enabled bool) *LibgenSource {
	return &LibgenSource{http: client, mirror: mirror, enabled: enabled}
}

func (s *LibgenSource) Name() string { return "libgen" }

func (s *LibgenSource) GetURLs(ctx context.Context, pub types.Publication) Result[[]types.URLDescriptor] {
	if !s.enabled {
		return Skip[[]types.URLDescriptor]("libgen disabled by configuration")
	}
	if pub.DOI == "" {
		return Skip[[]types.URLDescriptor]("no DOI")
	}
	url := fmt.Sprintf("%s/scimag/%s", strings.TrimRight(s.mirror, "/"), pub.DOI)
	out := []types.URLDescriptor{descriptor(url, s.Name(), 5, types.ShapeLandingPage)}
	return Success(out)
}
