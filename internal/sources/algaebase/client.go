// Package algaebase provides a morphology fetcher that reads AlgaeBase
// species pages.
package algaebase

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/agentstation/taxamap/internal/transport"
	"github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/logging"
	"github.com/agentstation/taxamap/pkg/sources"
	"github.com/agentstation/taxamap/pkg/taxa"
	"github.com/agentstation/taxamap/pkg/types"
)

// BaseURL is the AlgaeBase site root.
const BaseURL = "https://www.algaebase.org"

// maxDescription caps the stored description text.
const maxDescription = 4000

var (
	spaces  = regexp.MustCompile(`\s+`)
	habitat = regexp.MustCompile(`(?i)habitat\s*[:.]\s*([^\n]+)`)
)

// IDResolver finds the AlgaeBase species id of a name, e.g. through WoRMS
// external identifiers.
type IDResolver func(ctx context.Context, name string) (string, error)

// Client implements sources.Fetcher for AlgaeBase.
type Client struct {
	transport *transport.Client
	baseURL   string
	resolve   IDResolver
}

var _ sources.Fetcher = (*Client)(nil)

// New creates an AlgaeBase client. resolve may be nil, in which case calls
// must carry algaebase_id.
func New(resolve IDResolver, opts ...transport.Option) *Client {
	return &Client{
		transport: transport.New(string(types.AlgaeBaseID), opts...),
		baseURL:   BaseURL,
		resolve:   resolve,
	}
}

// ID implements sources.Fetcher.
func (c *Client) ID() types.SourceID { return types.AlgaeBaseID }

// Capabilities implements sources.Fetcher.
func (c *Client) Capabilities() []types.Capability {
	return []types.Capability{types.GetMorphology}
}

// Fetch implements sources.Fetcher.
func (c *Client) Fetch(ctx context.Context, capability types.Capability, args sources.Args) (any, error) {
	if capability != types.GetMorphology {
		return nil, errors.NewSourceError(string(types.AlgaeBaseID), string(capability), errors.KindMalformed,
			errors.New("unsupported capability"))
	}

	name := args.Get("name")
	id := args.Get("algaebase_id")
	if id == "" {
		if c.resolve == nil {
			return nil, errors.NewSourceError(string(types.AlgaeBaseID), string(capability), errors.KindMalformed,
				errors.NewValidationError("algaebase_id", nil, "required when no id resolver is configured"))
		}
		var err error
		if id, err = c.resolve(ctx, name); err != nil {
			return nil, err
		}
	}
	return c.Morphology(ctx, name, id)
}

// Morphology reads the species detail page of id.
func (c *Client) Morphology(ctx context.Context, name, id string) (*taxa.MorphologyPayload, error) {
	pageURL := c.baseURL + "/search/species/detail/?species_id=" + url.QueryEscape(id)
	body, err := c.transport.GetBody(ctx, pageURL, "text/html")
	if err != nil {
		return nil, err
	}

	parsed, _ := url.Parse(pageURL)
	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return nil, errors.WrapParse("html", pageURL, err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return nil, errors.NewSourceError(string(types.AlgaeBaseID), string(types.GetMorphology), errors.KindNotFound,
			errors.NewNotFoundError("morphology", id, "empty species page"))
	}

	out := &taxa.MorphologyPayload{
		Description: truncate(spaces.ReplaceAllString(text, " "), maxDescription),
		SourceURL:   pageURL,
		Media:       []taxa.MediaRecord{},
	}
	if m := habitat.FindStringSubmatch(text); m != nil {
		out.Habitat = strings.TrimSpace(m[1])
	}

	if img := imageURL(body, parsed); img != "" {
		out.Media = append(out.Media, taxa.MediaRecord{
			URL:     img,
			Caption: fmt.Sprintf("%s (AlgaeBase species %s)", name, id),
			Rights:  "AlgaeBase",
			Source:  types.AlgaeBaseID,
		})
	} else {
		logging.FromContext(ctx).Debug().Str("algaebase_id", id).Msg("no image on species page")
	}
	return out, nil
}

// imageURL prefers the og:image meta tag and falls back to the first
// species image in the page.
func imageURL(page []byte, base *url.URL) string {
	var fallback string
	z := html.NewTokenizer(bytes.NewReader(page))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return resolveRef(base, fallback)
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.Data {
			case "meta":
				if attr(tok, "property") == "og:image" {
					if v := attr(tok, "content"); v != "" {
						return resolveRef(base, v)
					}
				}
			case "img":
				src := attr(tok, "src")
				if fallback == "" && (strings.Contains(src, "skindata/images") || strings.Contains(src, "upload/images")) {
					fallback = src
				}
			}
		}
	}
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func resolveRef(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ""
	}
	return u.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
