// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"

	"github.com/pdiddy/research-engine/internal/httpclient"
	"github.com/pdiddy/research-engine/pkg/types"
)

// geoCatalogBase is declared as a var, not a const, so tests can
// substitute an httptest server.
var geoCatalogBase = "https://www.ncbi.nlm.nih.gov/geo/query/acc.cgi"

// CatalogClient fetches dataset-level metadata (title, organism, sample
// count, submission date, associated PMIDs) from the GEO MINiML/SOFT
// record for one dataset ID. The platform is not read; Platform stays empty.
type CatalogClient struct {
	http *httpclient.Client
}

func NewCatalogClient(client *httpclient.Client) *CatalogClient {
	return &CatalogClient{http: client}
}

func (c *CatalogClient) Name() string { return "catalog" }

// geoMiniml is the subset of a GEO MINiML document this client needs.
type geoMiniml struct {
	XMLName xml.Name `xml:"MINiML"`
	Series  struct {
		Title          string `xml:"title"`
		SubmissionDate string `xml:"status>submission-date"`
		Samples        []struct {
			IID string `xml:"iid,attr"`
		} `xml:"Sample-Ref"`
		Organism struct {
			Value string `xml:",chardata"`
		} `xml:"Platform>organism"`
		PubMedIDs []string `xml:"Sample>Relation"`
	} `xml:"Series"`
}

// FetchDataset retrieves the GEO series record for datasetID and
// normalizes it into DatasetMeta. Returns Skipped when datasetID is
// empty, Err on any transport or parse failure — never panics past its
// boundary.
func (c *CatalogClient) FetchDataset(ctx context.Context, datasetID string) Result[types.DatasetMeta] {
	if datasetID == "" {
		return Skip[types.DatasetMeta]("empty dataset id")
	}

	url := fmt.Sprintf("%s?acc=%s&targ=self&view=quick&form=xml", geoCatalogBase, datasetID)
	resp := c.http.Get(ctx, url, nil)
	if resp.Err != nil {
		return Fail[types.DatasetMeta](fmt.Errorf("sources: catalog fetch %s: %w", datasetID, resp.Err))
	}
	if resp.StatusCode == 404 {
		return Skip[types.DatasetMeta]("dataset not found")
	}
	if resp.StatusCode != 200 {
		return Failf[types.DatasetMeta]("sources: catalog fetch %s: http %d", datasetID, resp.StatusCode)
	}

	var doc geoMiniml
	if err := xml.Unmarshal(resp.Body, &doc); err != nil {
		return Fail[types.DatasetMeta](fmt.Errorf("sources: catalog parse %s: %w", datasetID, err))
	}

	raw, _ := json.Marshal(doc)
	meta := types.DatasetMeta{
		ID:               datasetID,
		Title:            doc.Series.Title,
		Organism:         doc.Series.Organism.Value,
		SampleCount:      len(doc.Series.Samples),
		SubmissionDate:   doc.Series.SubmissionDate,
		PMIDs:            doc.Series.PubMedIDs,
		ProviderMetadata: raw,
	}
	return Success(meta)
}
