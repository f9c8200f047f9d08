// Package worms provides a fetcher for the World Register of Marine Species REST API.
package worms

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/agentstation/taxamap/internal/transport"
	"github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/logging"
	"github.com/agentstation/taxamap/pkg/sources"
	"github.com/agentstation/taxamap/pkg/taxa"
	"github.com/agentstation/taxamap/pkg/types"
)

// BaseURL is the WoRMS REST endpoint.
const BaseURL = "https://www.marinespecies.org/rest"

// aphiaRecord is the subset of an AphiaRecord taxamap reads.
type aphiaRecord struct {
	AphiaID        int    `json:"AphiaID"`
	URL            string `json:"url"`
	ScientificName string `json:"scientificname"`
	Authority      string `json:"authority"`
	Status         string `json:"status"`
	Rank           string `json:"rank"`
	ValidAphiaID   *int   `json:"valid_AphiaID"`
	ValidName      string `json:"valid_name"`
	Kingdom        string `json:"kingdom"`
	Phylum         string `json:"phylum"`
	Class          string `json:"class"`
	Order          string `json:"order"`
	Family         string `json:"family"`
	Genus          string `json:"genus"`
	IsMarine       *int   `json:"isMarine"`
	IsBrackish     *int   `json:"isBrackish"`
	IsFreshwater   *int   `json:"isFreshwater"`
	IsTerrestrial  *int   `json:"isTerrestrial"`
}

// Client implements sources.Fetcher for WoRMS.
type Client struct {
	transport *transport.Client
	baseURL   string
}

var _ sources.Fetcher = (*Client)(nil)

// New creates a WoRMS client.
func New(opts ...transport.Option) *Client {
	return &Client{
		transport: transport.New(string(types.WoRMSID), opts...),
		baseURL:   BaseURL,
	}
}

// ID implements sources.Fetcher.
func (c *Client) ID() types.SourceID { return types.WoRMSID }

// Capabilities implements sources.Fetcher.
func (c *Client) Capabilities() []types.Capability {
	return []types.Capability{types.LookupByName}
}

// Fetch implements sources.Fetcher.
func (c *Client) Fetch(ctx context.Context, capability types.Capability, args sources.Args) (any, error) {
	if capability != types.LookupByName {
		return nil, errors.NewSourceError(string(types.WoRMSID), string(capability), errors.KindMalformed,
			errors.New("unsupported capability"))
	}
	return c.Lookup(ctx, args.Get("name"))
}

// Lookup resolves a scientific name. When the best match is an unaccepted
// name, the accepted record is returned instead and the queried name is
// listed among its synonyms.
func (c *Client) Lookup(ctx context.Context, name string) (*taxa.TaxonomyPayload, error) {
	rec, err := c.matchName(ctx, name)
	if err != nil {
		return nil, err
	}

	queried := rec
	if rec.ValidAphiaID != nil && *rec.ValidAphiaID != 0 && *rec.ValidAphiaID != rec.AphiaID {
		accepted, err := c.recordByID(ctx, *rec.ValidAphiaID)
		if err != nil {
			return nil, err
		}
		rec = accepted
	}

	payload := toPayload(rec)
	logger := logging.FromContext(ctx)

	synonyms, err := c.synonyms(ctx, rec.AphiaID)
	if err != nil {
		// synonyms are optional enrichment
		logger.Debug().Err(err).Int("aphia_id", rec.AphiaID).Msg("worms synonyms unavailable")
	}
	if queried.AphiaID != rec.AphiaID {
		synonyms = append(synonyms, queried.ScientificName)
	}
	payload.Synonyms = dedupe(synonyms, payload.ScientificName)

	algaebaseID, err := c.externalID(ctx, rec.AphiaID, "algaebase")
	if err != nil {
		logger.Debug().Err(err).Int("aphia_id", rec.AphiaID).Msg("worms algaebase id unavailable")
	} else if algaebaseID != "" {
		payload.ExternalIDs[types.AlgaeBaseID] = algaebaseID
	}

	return payload, nil
}

// AlgaeBaseID resolves the AlgaeBase species id of a name through WoRMS
// external identifiers.
func (c *Client) AlgaeBaseID(ctx context.Context, name string) (string, error) {
	p, err := c.Lookup(ctx, name)
	if err != nil {
		return "", err
	}
	id := p.ExternalIDs[types.AlgaeBaseID]
	if id == "" {
		return "", errors.NewNotFoundError("algaebase id", name, "no WoRMS cross reference")
	}
	return id, nil
}

func (c *Client) matchName(ctx context.Context, name string) (aphiaRecord, error) {
	q := url.Values{}
	q.Set("scientificnames[]", name)
	q.Set("marine_only", "false")

	var matches [][]aphiaRecord
	if err := c.transport.GetJSON(ctx, c.baseURL+"/AphiaRecordsByMatchNames?"+q.Encode(), &matches); err != nil {
		return aphiaRecord{}, err
	}
	if len(matches) == 0 || len(matches[0]) == 0 {
		return aphiaRecord{}, errors.NewSourceError(string(types.WoRMSID), string(types.LookupByName),
			errors.KindNotFound, errors.NewNotFoundError("taxon", name, ""))
	}
	return matches[0][0], nil
}

func (c *Client) recordByID(ctx context.Context, id int) (aphiaRecord, error) {
	var rec aphiaRecord
	err := c.transport.GetJSON(ctx, c.baseURL+"/AphiaRecordByAphiaID/"+strconv.Itoa(id), &rec)
	return rec, err
}

func (c *Client) synonyms(ctx context.Context, id int) ([]string, error) {
	var recs []aphiaRecord
	if err := c.transport.GetJSON(ctx, c.baseURL+"/AphiaSynonymsByAphiaID/"+strconv.Itoa(id), &recs); err != nil {
		if errors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(recs))
	for _, r := range recs {
		names = append(names, r.ScientificName)
	}
	return names, nil
}

func (c *Client) externalID(ctx context.Context, id int, kind string) (string, error) {
	var ids []string
	err := c.transport.GetJSON(ctx, c.baseURL+"/AphiaExternalIDByAphiaID/"+strconv.Itoa(id)+"?type="+url.QueryEscape(kind), &ids)
	if err != nil {
		if errors.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}
	if len(ids) == 0 {
		return "", nil
	}
	return strings.TrimSpace(ids[0]), nil
}

func toPayload(r aphiaRecord) *taxa.TaxonomyPayload {
	status := taxa.StatusAccepted
	if r.Status != "" && r.Status != "accepted" {
		status = taxa.StatusSynonym
	}
	p := &taxa.TaxonomyPayload{
		SourceRecordID: strconv.Itoa(r.AphiaID),
		ScientificName: r.ScientificName,
		Authority:      r.Authority,
		Rank:           r.Rank,
		Status:         status,
		Classification: taxa.Classification{
			Kingdom: r.Kingdom,
			Phylum:  r.Phylum,
			Class:   r.Class,
			Order:   r.Order,
			Family:  r.Family,
			Genus:   r.Genus,
		},
		ExternalIDs: map[types.SourceID]string{types.WoRMSID: strconv.Itoa(r.AphiaID)},
		URL:         r.URL,
	}
	if status == taxa.StatusSynonym {
		p.AcceptedName = r.ValidName
	}
	if r.IsMarine != nil || r.IsBrackish != nil || r.IsFreshwater != nil || r.IsTerrestrial != nil {
		p.Ecology = &taxa.Ecology{
			Marine:      flag(r.IsMarine),
			Brackish:    flag(r.IsBrackish),
			Freshwater:  flag(r.IsFreshwater),
			Terrestrial: flag(r.IsTerrestrial),
		}
	}
	return p
}

func flag(v *int) *bool {
	if v == nil {
		return nil
	}
	return taxa.Bool(*v == 1)
}

func dedupe(names []string, self string) []string {
	seen := map[string]bool{taxa.NormalizeName(self): true}
	var out []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		key := taxa.NormalizeName(n)
		if n == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}
