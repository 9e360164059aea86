// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/pdiddy/research-engine/internal/httpclient"
	"github.com/pdiddy/research-engine/pkg/types"
)

// maxPMIDsPerBatch mirrors the PubMed efetch ceiling.
const maxPMIDsPerBatch = 200

var pubmedEFetchBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/efetch.fcgi"

// PMIDClient fills in title/authors/journal/year/DOI/PMC-ID for a batch
// of PMIDs, ahead of citation lookup.
type PMIDClient struct {
	http   *httpclient.Client
	apiKey string
}

func NewPMIDClient(client *httpclient.Client, ncbiAPIKey string) *PMIDClient {
	return &PMIDClient{http: client, apiKey: ncbiAPIKey}
}

func (c *PMIDClient) Name() string { return "pmid" }

type pubmedArticleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	PMID    string `xml:"MedlineCitation>PMID"`
	Title   string `xml:"MedlineCitation>Article>ArticleTitle"`
	Journal string `xml:"MedlineCitation>Article>Journal>Title"`
	Year    string `xml:"MedlineCitation>Article>Journal>JournalIssue>PubDate>Year"`
	Authors []struct {
		LastName string `xml:"LastName"`
		ForeName string `xml:"ForeName"`
	} `xml:"MedlineCitation>Article>AuthorList>Author"`
	ArticleIDs []struct {
		IDType string `xml:"IdType,attr"`
		Value  string `xml:",chardata"`
	} `xml:"PubmedData>ArticleIdList>ArticleId"`
}

// FetchBatch fetches metadata for up to maxPMIDsPerBatch PMIDs in one
// efetch call. Callers are responsible for chunking longer lists —
// exceeding the per-call ceiling is a caller error.
func (c *PMIDClient) FetchBatch(ctx context.Context, pmids []string) Result[[]types.Publication] {
	if len(pmids) == 0 {
		return Skip[[]types.Publication]("empty pmid list")
	}
	if len(pmids) > maxPMIDsPerBatch {
		return Failf[[]types.Publication]("sources: pmid batch of %d exceeds max %d", len(pmids), maxPMIDsPerBatch)
	}

	url := fmt.Sprintf("%s?db=pubmed&id=%s&retmode=xml", pubmedEFetchBase, strings.Join(pmids, ","))
	if c.apiKey != "" {
		url += "&api_key=" + c.apiKey
	}

	resp := c.http.Get(ctx, url, nil)
	if resp.Err != nil {
		return Fail[[]types.Publication](fmt.Errorf("sources: pmid efetch: %w", resp.Err))
	}
	if resp.StatusCode != 200 {
		return Failf[[]types.Publication]("sources: pmid efetch: http %d", resp.StatusCode)
	}

	var set pubmedArticleSet
	if err := xml.Unmarshal(resp.Body, &set); err != nil {
		return Fail[[]types.Publication](fmt.Errorf("sources: pmid efetch parse: %w", err))
	}

	pubs := make([]types.Publication, 0, len(set.Articles))
	for _, a := range set.Articles {
		pub := types.Publication{
			PMID:    a.PMID,
			Title:   a.Title,
			Journal: a.Journal,
			Sources: []string{c.Name()},
		}
		if year, err := strconv.Atoi(a.Year); err == nil {
			pub.Year = year
		}
		for _, au := range a.Authors {
			name := strings.TrimSpace(au.ForeName + " " + au.LastName)
			if name != "" {
				pub.Authors = append(pub.Authors, name)
			}
		}
		for _, id := range a.ArticleIDs {
			switch id.IDType {
			case "doi":
				pub.DOI = strings.ToLower(id.Value)
			case "pmc":
				pub.PMCID = id.Value
			}
		}
		raw, _ := json.Marshal(a)
		pub.ProviderMetadata = raw
		pubs = append(pubs, pub)
	}

	return Success(pubs)
}
