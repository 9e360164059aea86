// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/pdiddy/research-engine/internal/httpclient"
	"github.com/pdiddy/research-engine/pkg/types"
)

// CitationSource is implemented by every provider that can list papers
// citing a seed publication: one Name plus one typed call.
type CitationSource interface {
	Name() string
	GetCitations(ctx context.Context, seed types.Publication) Result[[]types.Publication]
}

// --- OpenAlex ---------------------------------------------------------

var openAlexCitesBase = "https://api.openalex.org/works"

// OpenAlexCitations finds citing works via OpenAlex's cites: filter.
// DOI-only: a seed lacking a DOI is skipped rather than failed.
type OpenAlexCitations struct {
	http  *httpclient.Client
	email string
}

func NewOpenAlexCitations(client *httpclient.Client, email string) *OpenAlexCitations {
	return &OpenAlexCitations{http: client, email: email}
}

func (s *OpenAlexCitations) Name() string { return "openalex" }

type openAlexWorksResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID           string   `json:"id"`
	DOI          string   `json:"doi"`
	Title        string   `json:"title"`
	PublicationYear int   `json:"publication_year"`
	HostVenue    struct {
		DisplayName string `json:"display_name"`
	} `json:"primary_location"`
	Authorships []struct {
		Author struct {
			DisplayName string `json:"display_name"`
		} `json:"author"`
	} `json:"authorships"`
}

func (s *OpenAlexCitations) GetCitations(ctx context.Context, seed types.Publication) Result[[]types.Publication] {
	if seed.DOI == "" {
		return Skip[[]types.Publication]("no DOI on seed")
	}

	params := url.Values{"filter": {"cites:" + seed.DOI}, "per_page": {"100"}}
	if s.email != "" {
		params.Set("mailto", s.email)
	}
	reqURL := openAlexCitesBase + "?" + params.Encode()

	resp := s.http.Get(ctx, reqURL, nil)
	if resp.Err != nil {
		return Fail[[]types.Publication](fmt.Errorf("sources: openalex citations: %w", resp.Err))
	}
	if resp.StatusCode != 200 {
		return Failf[[]types.Publication]("sources: openalex citations: http %d", resp.StatusCode)
	}

	var body openAlexWorksResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return Fail[[]types.Publication](fmt.Errorf("sources: openalex citations parse: %w", err))
	}

	out := make([]types.Publication, 0, len(body.Results))
	for _, w := range body.Results {
		pub := types.Publication{
			DOI:     strings.TrimPrefix(w.DOI, "https://doi.org/"),
			Title:   w.Title,
			Year:    w.PublicationYear,
			Journal: w.HostVenue.DisplayName,
			Sources: []string{s.Name()},
		}
		for _, a := range w.Authorships {
			pub.Authors = append(pub.Authors, a.Author.DisplayName)
		}
		raw, _ := json.Marshal(w)
		pub.ProviderMetadata = raw
		out = append(out, pub)
	}
	return Success(out)
}

// --- Semantic Scholar --------------------------------------------------

var semanticScholarBase = "https://api.semanticscholar.org/graph/v1/paper"

// SemanticScholarCitations finds citing works by DOI or PMID.
type SemanticScholarCitations struct {
	http   *httpclient.Client
	apiKey string
}

func NewSemanticScholarCitations(client *httpclient.Client, apiKey string) *SemanticScholarCitations {
	return &SemanticScholarCitations{http: client, apiKey: apiKey}
}

func (s *SemanticScholarCitations) Name() string { return "semantic_scholar" }

type semanticCitationsResponse struct {
	Data []struct {
		CitingPaper struct {
			Title        string `json:"title"`
			Year         int    `json:"year"`
			ExternalIDs  struct {
				DOI  string `json:"DOI"`
				PMID string `json:"PubMed"`
			} `json:"externalIds"`
			Authors []struct {
				Name string `json:"name"`
			} `json:"authors"`
		} `json:"citingPaper"`
	} `json:"data"`
}

func (s *SemanticScholarCitations) GetCitations(ctx context.Context, seed types.Publication) Result[[]types.Publication] {
	idPath := semanticPaperID(seed)
	if idPath == "" {
		return Skip[[]types.Publication]("no DOI or PMID on seed")
	}

	reqURL := fmt.Sprintf("%s/%s/citations?fields=title,year,authors,externalIds", semanticScholarBase, idPath)
	headers := map[string]string{}
	if s.apiKey != "" {
		headers["x-api-key"] = s.apiKey
	}

	resp := s.http.Get(ctx, reqURL, headers)
	if resp.Err != nil {
		return Fail[[]types.Publication](fmt.Errorf("sources: semantic scholar citations: %w", resp.Err))
	}
	if resp.StatusCode != 200 {
		return Failf[[]types.Publication]("sources: semantic scholar citations: http %d", resp.StatusCode)
	}

	var body semanticCitationsResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return Fail[[]types.Publication](fmt.Errorf("sources: semantic scholar citations parse: %w", err))
	}

	out := make([]types.Publication, 0, len(body.Data))
	for _, d := range body.Data {
		pub := types.Publication{
			DOI:     strings.ToLower(d.CitingPaper.ExternalIDs.DOI),
			PMID:    d.CitingPaper.ExternalIDs.PMID,
			Title:   d.CitingPaper.Title,
			Year:    d.CitingPaper.Year,
			Sources: []string{s.Name()},
		}
		for _, a := range d.CitingPaper.Authors {
			pub.Authors = append(pub.Authors, a.Name)
		}
		out = append(out, pub)
	}
	return Success(out)
}

func semanticPaperID(seed types.Publication) string {
	switch {
	case seed.DOI != "":
		return "DOI:" + seed.DOI
	case seed.PMID != "":
		return "PMID:" + seed.PMID
	default:
		return ""
	}
}

// --- Europe PMC ---------------------------------------------------------

var europePMCCitesBase = "https://www.ebi.ac.uk/europepmc/webservices/rest"

// EuropePMCCitations finds citing works by DOI or PMID.
type EuropePMCCitations struct {
	http *httpclient.Client
}

func NewEuropePMCCitations(client *httpclient.Client) *EuropePMCCitations {
	return &EuropePMCCitations{http: client}
}

func (s *EuropePMCCitations) Name() string { return "europe_pmc" }

type europePMCCitationsResponse struct {
	CitationList struct {
		Citation []struct {
			Title   string `json:"title"`
			PubYear int    `json:"pubYear"`
			Authors string `json:"authorString"`
			DOI     string `json:"doi"`
			PMID    string `json:"id"`
		} `json:"citation"`
	} `json:"citationList"`
}

func (s *EuropePMCCitations) GetCitations(ctx context.Context, seed types.Publication) Result[[]types.Publication] {
	src, id := europePMCSourceID(seed)
	if id == "" {
		return Skip[[]types.Publication]("no DOI or PMID on seed")
	}

	reqURL := fmt.Sprintf("%s/%s/%s/citations?format=json", europePMCCitesBase, src, id)
	resp := s.http.Get(ctx, reqURL, nil)
	if resp.Err != nil {
		return Fail[[]types.Publication](fmt.Errorf("sources: europe pmc citations: %w", resp.Err))
	}
	if resp.StatusCode != 200 {
		return Failf[[]types.Publication]("sources: europe pmc citations: http %d", resp.StatusCode)
	}

	var body europePMCCitationsResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return Fail[[]types.Publication](fmt.Errorf("sources: europe pmc citations parse: %w", err))
	}

	out := make([]types.Publication, 0, len(body.CitationList.Citation))
	for _, c := range body.CitationList.Citation {
		out = append(out, types.Publication{
			DOI:     strings.ToLower(c.DOI),
			PMID:    c.PMID,
			Title:   c.Title,
			Year:    c.PubYear,
			Authors: splitAuthorString(c.Authors),
			Sources: []string{s.Name()},
		})
	}
	return Success(out)
}

func europePMCSourceID(seed types.Publication) (source, id string) {
	switch {
	case seed.PMID != "":
		return "MED", seed.PMID
	case seed.DOI != "":
		return "DOI", seed.DOI
	default:
		return "", ""
	}
}

func splitAuthorString(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// --- OpenCitations Meta --------------------------------------------------

const openCitationsMaxBatchDOIs = 10

var openCitationsMetaBase = "https://opencitations.net/meta/api/v1/citing"

// OpenCitationsMeta finds citing works by DOI; supports batching up to
// openCitationsMaxBatchDOIs DOIs per request (more hits a request URL
// length limit).
type OpenCitationsMeta struct {
	http *httpclient.Client
}

func NewOpenCitationsMeta(client *httpclient.Client) *OpenCitationsMeta {
	return &OpenCitationsMeta{http: client}
}

func (s *OpenCitationsMeta) Name() string { return "opencitations_meta" }

type openCitationsEntry struct {
	Citing string `json:"citing"`
}

func (s *OpenCitationsMeta) GetCitations(ctx context.Context, seed types.Publication) Result[[]types.Publication] {
	if seed.DOI == "" {
		return Skip[[]types.Publication]("no DOI on seed")
	}

	reqURL := fmt.Sprintf("%s/doi:%s", openCitationsMetaBase, url.PathEscape(seed.DOI))
	resp := s.http.Get(ctx, reqURL, nil)
	if resp.Err != nil {
		return Fail[[]types.Publication](fmt.Errorf("sources: opencitations: %w", resp.Err))
	}
	if resp.StatusCode != 200 {
		return Failf[[]types.Publication]("sources: opencitations: http %d", resp.StatusCode)
	}

	var entries []openCitationsEntry
	if err := json.Unmarshal(resp.Body, &entries); err != nil {
		return Fail[[]types.Publication](fmt.Errorf("sources: opencitations parse: %w", err))
	}

	out := make([]types.Publication, 0, len(entries))
	for _, e := range entries {
		doi := strings.TrimPrefix(strings.ToLower(e.Citing), "doi:")
		if doi == "" {
			continue
		}
		out = append(out, types.Publication{DOI: doi, Sources: []string{s.Name()}})
	}
	return Success(out)
}

var openCitationsMetadataBase = "https://opencitations.net/meta/api/v1/metadata"

type openCitationsMetaEntry struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Author  string `json:"author"`
	PubDate string `json:"pub_date"`
	Venue   string `json:"venue"`
}

// FetchBatchMetadata resolves metadata for up to openCitationsMaxBatchDOIs
// DOIs in one request, joining them the way the /metadata/ endpoint
// expects: "__"-separated entity identifiers.
func (s *OpenCitationsMeta) FetchBatchMetadata(ctx context.Context, dois []string) Result[[]types.Publication] {
	if len(dois) == 0 {
		return Skip[[]types.Publication]("empty doi list")
	}
	if len(dois) > openCitationsMaxBatchDOIs {
		return Failf[[]types.Publication]("sources: opencitations batch of %d exceeds max %d", len(dois), openCitationsMaxBatchDOIs)
	}

	ids := make([]string, len(dois))
	for i, doi := range dois {
		ids[i] = "doi:" + doi
	}
	reqURL := fmt.Sprintf("%s/%s", openCitationsMetadataBase, url.PathEscape(strings.Join(ids, "__")))

	resp := s.http.Get(ctx, reqURL, nil)
	if resp.Err != nil {
		return Fail[[]types.Publication](fmt.Errorf("sources: opencitations metadata: %w", resp.Err))
	}
	if resp.StatusCode != 200 {
		return Failf[[]types.Publication]("sources: opencitations metadata: http %d", resp.StatusCode)
	}

	var entries []openCitationsMetaEntry
	if err := json.Unmarshal(resp.Body, &entries); err != nil {
		return Fail[[]types.Publication](fmt.Errorf("sources: opencitations metadata parse: %w", err))
	}

	out := make([]types.Publication, 0, len(entries))
	for _, e := range entries {
		pub := types.Publication{
			Title:   e.Title,
			Authors: splitAuthorString(e.Author),
			Journal: e.Venue,
			Sources: []string{s.Name()},
		}
		if len(e.PubDate) >= 4 {
			if year, err := strconv.Atoi(e.PubDate[:4]); err == nil {
				pub.Year = year
			}
		}
		for _, part := range strings.Split(e.ID, " ") {
			if doi, ok := strings.CutPrefix(part, "doi:"); ok {
				pub.DOI = doi
				break
			}
		}
		out = append(out, pub)
	}
	return Success(out)
}

// --- PubMed elink/efetch ------------------------------------------------

var pubmedELinkBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/elink.fcgi"

const pubmedEFetchBatchSize = 100

// PubMedELink finds citing PMIDs via linkname=pubmed_pubmed_citedin, then
// resolves metadata for all of them via efetch, pubmedEFetchBatchSize per call.
// One elink call is per-PMID; efetch batches.
type PubMedELink struct {
	http   *httpclient.Client
	pmid   *PMIDClient
	apiKey string
}

func NewPubMedELink(client *httpclient.Client, pmidClient *PMIDClient, ncbiAPIKey string) *PubMedELink {
	return &PubMedELink{http: client, pmid: pmidClient, apiKey: ncbiAPIKey}
}

func (s *PubMedELink) Name() string { return "pubmed_elink" }

type eLinkResult struct {
	LinkSets []struct {
		LinkSetDb []struct {
			LinkName string `xml:"LinkName"`
			Link     []struct {
				ID string `xml:"Id"`
			} `xml:"Link"`
		} `xml:"LinkSetDb"`
	} `xml:"LinkSet"`
}

func (s *PubMedELink) GetCitations(ctx context.Context, seed types.Publication) Result[[]types.Publication] {
	if seed.PMID == "" {
		return Skip[[]types.Publication]("no PMID on seed")
	}

	params := url.Values{
		"dbfrom":   {"pubmed"},
		"linkname": {"pubmed_pubmed_citedin"},
		"id":       {seed.PMID},
		"retmode":  {"xml"},
	}
	if s.apiKey != "" {
		params.Set("api_key", s.apiKey)
	}
	reqURL := pubmedELinkBase + "?" + params.Encode()

	resp := s.http.Get(ctx, reqURL, nil)
	if resp.Err != nil {
		return Fail[[]types.Publication](fmt.Errorf("sources: pubmed elink: %w", resp.Err))
	}
	if resp.StatusCode != 200 {
		return Failf[[]types.Publication]("sources: pubmed elink: http %d", resp.StatusCode)
	}

	var result eLinkResult
	if err := xml.Unmarshal(resp.Body, &result); err != nil {
		return Fail[[]types.Publication](fmt.Errorf("sources: pubmed elink parse: %w", err))
	}

	var citingPMIDs []string
	for _, set := range result.LinkSets {
		for _, db := range set.LinkSetDb {
			if db.LinkName != "pubmed_pubmed_citedin" {
				continue
			}
			for _, link := range db.Link {
				citingPMIDs = append(citingPMIDs, link.ID)
			}
		}
	}
	if len(citingPMIDs) == 0 {
		return Success[[]types.Publication](nil)
	}

	var out []types.Publication
	for start := 0; start < len(citingPMIDs); start += pubmedEFetchBatchSize {
		end := start + pubmedEFetchBatchSize
		if end > len(citingPMIDs) {
			end = len(citingPMIDs)
		}
		batch := s.pmid.FetchBatch(ctx, citingPMIDs[start:end])
		if !batch.Ok() {
			return Failf[[]types.Publication]("sources: pubmed elink efetch batch: %v", batch.Err)
		}
		for i := range batch.Value {
			batch.Value[i].Sources = []string{s.Name()}
		}
		out = append(out, batch.Value...)
	}

	return Success(out)
}
