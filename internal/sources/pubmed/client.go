// Package pubmed provides a literature fetcher backed by NCBI E-utilities.
package pubmed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/agentstation/taxamap/internal/transport"
	"github.com/agentstation/taxamap/pkg/constants"
	"github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/sources"
	"github.com/agentstation/taxamap/pkg/taxa"
	"github.com/agentstation/taxamap/pkg/types"
)

// BaseURL is the E-utilities endpoint.
const BaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// Keywords narrow searches to topical papers and drive relevance scoring.
var Keywords = []string{
	"ecology", "morphology", "freshwater", "distribution", "taxonomy",
	"ultrastructure", "phylogeny", "bloom", "toxin", "habitat", "bioindicator",
}

// keywordsForFullScore is how many keyword hits in a title earn the full
// keyword share of the relevance score.
const keywordsForFullScore = 2

type searchResponse struct {
	Result struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type summary struct {
	UID             string `json:"uid"`
	Title           string `json:"title"`
	PubDate         string `json:"pubdate"`
	Source          string `json:"source"`
	FullJournalName string `json:"fulljournalname"`
	Authors         []struct {
		Name string `json:"name"`
	} `json:"authors"`
	ArticleIDs []struct {
		IDType string `json:"idtype"`
		Value  string `json:"value"`
	} `json:"articleids"`
}

// Client implements sources.Fetcher for PubMed.
type Client struct {
	transport *transport.Client
	baseURL   string
}

var _ sources.Fetcher = (*Client)(nil)

// New creates a PubMed client. Pass transport.WithAuth(&transport.QueryAuth{Param: "api_key"}, key)
// to raise the NCBI rate limit.
func New(opts ...transport.Option) *Client {
	return &Client{
		transport: transport.New(string(types.PubMedID), opts...),
		baseURL:   BaseURL,
	}
}

// ID implements sources.Fetcher.
func (c *Client) ID() types.SourceID { return types.PubMedID }

// Capabilities implements sources.Fetcher.
func (c *Client) Capabilities() []types.Capability {
	return []types.Capability{types.GetLiterature}
}

// Fetch implements sources.Fetcher.
func (c *Client) Fetch(ctx context.Context, capability types.Capability, args sources.Args) (any, error) {
	if capability != types.GetLiterature {
		return nil, errors.NewSourceError(string(types.PubMedID), string(capability), errors.KindMalformed,
			errors.New("unsupported capability"))
	}
	return c.Literature(ctx, args.Get("name"), args.Int("limit", constants.DefaultLiteratureLimit))
}

// Literature searches papers mentioning name in title or abstract, first
// restricted to topical keywords and, when that finds nothing, unrestricted.
func (c *Client) Literature(ctx context.Context, name string, limit int) (*taxa.LiteraturePayload, error) {
	safe := strings.ReplaceAll(name, `"`, "")
	general := fmt.Sprintf("%q[Title/Abstract]", safe)

	kw := make([]string, len(Keywords))
	for i, k := range Keywords {
		kw[i] = fmt.Sprintf("%q[Title/Abstract]", k)
	}
	specific := fmt.Sprintf("%s AND (%s)", general, strings.Join(kw, " OR "))

	total, ids, err := c.search(ctx, specific, limit)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		if total, ids, err = c.search(ctx, general, limit); err != nil {
			return nil, err
		}
	}

	out := &taxa.LiteraturePayload{Total: total, References: []taxa.LiteratureRecord{}}
	if len(ids) == 0 {
		return out, nil
	}

	sums, err := c.summaries(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, s := range sums {
		out.References = append(out.References, toRecord(s, name))
	}
	return out, nil
}

func (c *Client) search(ctx context.Context, term string, limit int) (int, []string, error) {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("term", term)
	q.Set("retmax", strconv.Itoa(limit))
	q.Set("retmode", "json")

	var resp searchResponse
	if err := c.transport.GetJSON(ctx, c.baseURL+"/esearch.fcgi?"+q.Encode(), &resp); err != nil {
		return 0, nil, err
	}
	total, _ := strconv.Atoi(resp.Result.Count)
	return total, resp.Result.IDList, nil
}

func (c *Client) summaries(ctx context.Context, ids []string) ([]summary, error) {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("id", strings.Join(ids, ","))
	q.Set("retmode", "json")

	var resp struct {
		Result map[string]json.RawMessage `json:"result"`
	}
	if err := c.transport.GetJSON(ctx, c.baseURL+"/esummary.fcgi?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	out := make([]summary, 0, len(ids))
	for _, id := range ids {
		raw, ok := resp.Result[id]
		if !ok {
			continue
		}
		var s summary
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, errors.WrapParse("json", "esummary", err)
		}
		out = append(out, s)
	}
	return out, nil
}

func toRecord(s summary, name string) taxa.LiteratureRecord {
	rec := taxa.LiteratureRecord{
		Title:     strings.TrimSuffix(strings.TrimSpace(s.Title), "."),
		Journal:   s.FullJournalName,
		URL:       "https://pubmed.ncbi.nlm.nih.gov/" + s.UID + "/",
		Relevance: Relevance(s.Title, name),
		Source:    types.PubMedID,
	}
	if rec.Journal == "" {
		rec.Journal = s.Source
	}
	if len(s.PubDate) >= 4 {
		rec.Year, _ = strconv.Atoi(s.PubDate[:4])
	}

	authors := make([]string, 0, len(s.Authors))
	for _, a := range s.Authors {
		authors = append(authors, a.Name)
	}
	rec.Authors = strings.Join(authors, ", ")

	for _, id := range s.ArticleIDs {
		switch id.IDType {
		case "doi":
			rec.DOI = id.Value
		case "pmc", "pmcid":
			rec.FullText = true
		}
	}
	return rec
}

// Relevance scores a title in [0,1]: half for naming the taxon, half for
// topical keywords.
func Relevance(title, name string) float64 {
	t := taxa.NormalizeName(title)
	score := 0.0
	if n := taxa.NormalizeName(name); n != "" && strings.Contains(t, n) {
		score += 0.5
	}
	hits := 0
	for _, k := range Keywords {
		if strings.Contains(t, k) {
			hits++
		}
	}
	score += 0.5 * float64(min(hits, keywordsForFullScore)) / keywordsForFullScore
	return taxa.ClampRelevance(score)
}
