// Package zenodo provides a media fetcher for scientific figures deposited on Zenodo.
package zenodo

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/agentstation/taxamap/internal/transport"
	"github.com/agentstation/taxamap/pkg/constants"
	"github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/sources"
	"github.com/agentstation/taxamap/pkg/taxa"
	"github.com/agentstation/taxamap/pkg/types"
)

// BaseURL is the Zenodo records search endpoint.
const BaseURL = "https://zenodo.org/api/records"

// searchSize is how many records are scored per request.
const searchSize = 20

// Scoring of figure captions: plots and charts are penalized, morphological
// plates and micrographs get a bonus.
var (
	penaltyKeywords = []string{
		"plot", "graph", "chart", "histogram", "absorbance", "growth", "concentration",
		"spectrum", "mean", "deviation", "data", "curve",
	}
	bonusKeywords = []string{
		"habitus", "thallus", "cell", "micrograph", "section", "transverse", "longitudinal",
		"holotype", "specimen", "drawing", "plate", "morphology", "anatomy",
	}
)

const (
	penalty   = -10
	bonus     = 5
	threshold = -5
)

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif"}

type searchResponse struct {
	Hits struct {
		Hits []hit `json:"hits"`
	} `json:"hits"`
}

type hit struct {
	Metadata struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		License     struct {
			ID string `json:"id"`
		} `json:"license"`
		Creators []struct {
			Name string `json:"name"`
		} `json:"creators"`
	} `json:"metadata"`
	Files []struct {
		Key   string `json:"key"`
		Type  string `json:"type"`
		Links struct {
			Self string `json:"self"`
		} `json:"links"`
	} `json:"files"`
}

// Client implements sources.Fetcher for Zenodo.
type Client struct {
	transport *transport.Client
	baseURL   string
}

var _ sources.Fetcher = (*Client)(nil)

// New creates a Zenodo client.
func New(opts ...transport.Option) *Client {
	return &Client{
		transport: transport.New(string(types.ZenodoID), opts...),
		baseURL:   BaseURL,
	}
}

// ID implements sources.Fetcher.
func (c *Client) ID() types.SourceID { return types.ZenodoID }

// Capabilities implements sources.Fetcher.
func (c *Client) Capabilities() []types.Capability {
	return []types.Capability{types.GetMedia}
}

// Fetch implements sources.Fetcher.
func (c *Client) Fetch(ctx context.Context, capability types.Capability, args sources.Args) (any, error) {
	if capability != types.GetMedia {
		return nil, errors.NewSourceError(string(types.ZenodoID), string(capability), errors.KindMalformed,
			errors.New("unsupported capability"))
	}
	return c.Figures(ctx, args.Get("name"), args.Int("limit", constants.MaxMediaPerSource))
}

// Figures searches image records mentioning name and returns the best
// scoring figure of each record, highest score first.
func (c *Client) Figures(ctx context.Context, name string, limit int) (*taxa.MediaPayload, error) {
	q := url.Values{}
	q.Set("q", fmt.Sprintf("%q AND resource_type.type:image", strings.ReplaceAll(name, `"`, "")))
	q.Set("size", strconv.Itoa(searchSize))
	q.Set("sort", "mostrecent")

	var resp searchResponse
	if err := c.transport.GetJSON(ctx, c.baseURL+"?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	type candidate struct {
		media taxa.MediaRecord
		score int
	}
	var candidates []candidate
	for _, h := range resp.Hits.Hits {
		title := h.Metadata.Title
		if title == "" {
			title = "Scientific figure"
		}
		s := Score(title + " " + h.Metadata.Description)
		if s < threshold {
			continue
		}
		link := imageLink(h)
		if link == "" {
			continue
		}
		var rights []string
		for _, cr := range h.Metadata.Creators {
			rights = append(rights, cr.Name)
		}
		candidates = append(candidates, candidate{
			media: taxa.MediaRecord{
				URL:     link,
				Caption: title,
				License: h.Metadata.License.ID,
				Rights:  strings.Join(rights, "; "),
				Source:  types.ZenodoID,
			},
			score: s,
		})
	}

	slices.SortStableFunc(candidates, func(a, b candidate) int { return b.score - a.score })

	out := &taxa.MediaPayload{Media: []taxa.MediaRecord{}}
	for _, cand := range candidates {
		if len(out.Media) >= limit {
			break
		}
		out.Media = append(out.Media, cand.media)
	}
	return out, nil
}

// Score rates a caption: one penalty if any chart keyword appears and one
// bonus if any morphology keyword appears.
func Score(text string) int {
	text = strings.ToLower(text)
	score := 0
	if containsAny(text, penaltyKeywords) {
		score += penalty
	}
	if containsAny(text, bonusKeywords) {
		score += bonus
	}
	return score
}

func containsAny(text string, words []string) bool {
	return slices.ContainsFunc(words, func(w string) bool { return strings.Contains(text, w) })
}

// imageLink returns the first image file of a record.
func imageLink(h hit) string {
	for _, f := range h.Files {
		typ := strings.ToLower(f.Type)
		ext := strings.ToLower(path.Ext(f.Key))
		if slices.Contains(imageExtensions, "."+typ) || slices.Contains(imageExtensions, ext) {
			if f.Links.Self != "" {
				return f.Links.Self
			}
		}
	}
	return ""
}
