// Package gbif provides a fetcher for the Global Biodiversity Information Facility API.
package gbif

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/agentstation/taxamap/internal/transport"
	"github.com/agentstation/taxamap/pkg/constants"
	"github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/sources"
	"github.com/agentstation/taxamap/pkg/taxa"
	"github.com/agentstation/taxamap/pkg/types"
)

// BaseURL is the GBIF API endpoint.
const BaseURL = "https://api.gbif.org/v1"

type matchResponse struct {
	UsageKey         int    `json:"usageKey"`
	AcceptedUsageKey int    `json:"acceptedUsageKey"`
	ScientificName   string `json:"scientificName"`
	CanonicalName    string `json:"canonicalName"`
	Rank             string `json:"rank"`
	Status           string `json:"status"`
	MatchType        string `json:"matchType"`
	Synonym          bool   `json:"synonym"`
	Species          string `json:"species"`
	Kingdom          string `json:"kingdom"`
	Phylum           string `json:"phylum"`
	Class            string `json:"class"`
	Order            string `json:"order"`
	Family           string `json:"family"`
	Genus            string `json:"genus"`
}

type occurrenceResponse struct {
	Count   int `json:"count"`
	Results []struct {
		DecimalLatitude  *float64 `json:"decimalLatitude"`
		DecimalLongitude *float64 `json:"decimalLongitude"`
		EventDate        string   `json:"eventDate"`
		CountryCode      string   `json:"countryCode"`
	} `json:"results"`
}

type mediaResponse struct {
	Results []struct {
		Type         string `json:"type"`
		Identifier   string `json:"identifier"`
		Title        string `json:"title"`
		License      string `json:"license"`
		RightsHolder string `json:"rightsHolder"`
		Creator      string `json:"creator"`
	} `json:"results"`
}

// Client implements sources.Fetcher for GBIF.
type Client struct {
	transport *transport.Client
	baseURL   string
}

var _ sources.Fetcher = (*Client)(nil)

// New creates a GBIF client.
func New(opts ...transport.Option) *Client {
	return &Client{
		transport: transport.New(string(types.GBIFID), opts...),
		baseURL:   BaseURL,
	}
}

// ID implements sources.Fetcher.
func (c *Client) ID() types.SourceID { return types.GBIFID }

// Capabilities implements sources.Fetcher.
func (c *Client) Capabilities() []types.Capability {
	return []types.Capability{types.LookupByName, types.GetOccurrences, types.GetMedia}
}

// Fetch implements sources.Fetcher.
func (c *Client) Fetch(ctx context.Context, capability types.Capability, args sources.Args) (any, error) {
	name := args.Get("name")
	switch capability {
	case types.LookupByName:
		m, err := c.match(ctx, name)
		if err != nil {
			return nil, err
		}
		return toPayload(m), nil
	case types.GetOccurrences:
		return c.Occurrences(ctx, name, args.Get("country"), args.Int("limit", constants.DefaultOccurrenceLimit))
	case types.GetMedia:
		return c.Media(ctx, name, args.Int("limit", constants.MaxMediaPerSource))
	}
	return nil, errors.NewSourceError(string(types.GBIFID), string(capability), errors.KindMalformed,
		errors.New("unsupported capability"))
}

// Occurrences returns georeferenced occurrence records for name.
func (c *Client) Occurrences(ctx context.Context, name, country string, limit int) (*taxa.OccurrencePayload, error) {
	q := url.Values{}
	q.Set("scientificName", name)
	q.Set("hasCoordinate", "true")
	q.Set("hasGeospatialIssue", "false")
	q.Set("limit", strconv.Itoa(limit))
	if country != "" {
		q.Set("country", strings.ToUpper(country))
	}

	var resp occurrenceResponse
	if err := c.transport.GetJSON(ctx, c.baseURL+"/occurrence/search?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	out := &taxa.OccurrencePayload{Total: resp.Count, Occurrences: []taxa.DistributionRecord{}}
	for _, r := range resp.Results {
		if r.DecimalLatitude == nil || r.DecimalLongitude == nil {
			continue
		}
		out.Occurrences = append(out.Occurrences, taxa.DistributionRecord{
			Latitude:    *r.DecimalLatitude,
			Longitude:   *r.DecimalLongitude,
			EventDate:   eventDate(r.EventDate),
			CountryCode: r.CountryCode,
			Source:      types.GBIFID,
		})
	}
	return out, nil
}

// Media returns up to limit still images of the matched taxon.
func (c *Client) Media(ctx context.Context, name string, limit int) (*taxa.MediaPayload, error) {
	m, err := c.match(ctx, name)
	if err != nil {
		return nil, err
	}
	key := m.UsageKey
	if m.Synonym && m.AcceptedUsageKey != 0 {
		key = m.AcceptedUsageKey
	}

	var resp mediaResponse
	if err := c.transport.GetJSON(ctx, fmt.Sprintf("%s/species/%d/media", c.baseURL, key), &resp); err != nil {
		return nil, err
	}

	out := &taxa.MediaPayload{Media: []taxa.MediaRecord{}}
	for _, r := range resp.Results {
		if r.Type != "StillImage" || r.Identifier == "" {
			continue
		}
		rights := r.RightsHolder
		if rights == "" {
			rights = r.Creator
		}
		out.Media = append(out.Media, taxa.MediaRecord{
			URL:     r.Identifier,
			Caption: r.Title,
			License: r.License,
			Rights:  rights,
			Source:  types.GBIFID,
		})
		if len(out.Media) >= limit {
			break
		}
	}
	return out, nil
}

func (c *Client) match(ctx context.Context, name string) (matchResponse, error) {
	q := url.Values{}
	q.Set("name", name)

	var m matchResponse
	if err := c.transport.GetJSON(ctx, c.baseURL+"/species/match?"+q.Encode(), &m); err != nil {
		return m, err
	}
	if m.MatchType == "NONE" || m.UsageKey == 0 {
		return m, errors.NewSourceError(string(types.GBIFID), string(types.LookupByName),
			errors.KindNotFound, errors.NewNotFoundError("taxon", name, "no backbone match"))
	}
	return m, nil
}

func toPayload(m matchResponse) *taxa.TaxonomyPayload {
	name := m.CanonicalName
	if name == "" {
		name = m.ScientificName
	}
	status := taxa.StatusAccepted
	if m.Synonym || strings.Contains(strings.ToUpper(m.Status), "SYNONYM") {
		status = taxa.StatusSynonym
	}
	p := &taxa.TaxonomyPayload{
		SourceRecordID: strconv.Itoa(m.UsageKey),
		ScientificName: name,
		Authority:      strings.TrimSpace(strings.TrimPrefix(m.ScientificName, name)),
		Rank:           titleRank(m.Rank),
		Status:         status,
		Classification: taxa.Classification{
			Kingdom: m.Kingdom,
			Phylum:  m.Phylum,
			Class:   m.Class,
			Order:   m.Order,
			Family:  m.Family,
			Genus:   m.Genus,
		},
		ExternalIDs: map[types.SourceID]string{types.GBIFID: strconv.Itoa(m.UsageKey)},
		URL:         fmt.Sprintf("https://www.gbif.org/species/%d", m.UsageKey),
	}
	if status == taxa.StatusSynonym && m.Species != "" && m.Species != name {
		p.AcceptedName = m.Species
	}
	return p
}

// titleRank turns GBIF's upper-case ranks into the WoRMS spelling.
func titleRank(r string) string {
	return cases.Title(language.Und).String(strings.ToLower(r))
}

// eventDate keeps the date part of an ISO 8601 timestamp or interval.
func eventDate(v string) string {
	if i := strings.IndexAny(v, "T/"); i >= 0 {
		v = v[:i]
	}
	return v
}
