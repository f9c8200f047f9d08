package taxa

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/agentstation/taxamap/pkg/types"
)

// DistributionRecord is one occurrence observation of an entity.
type DistributionRecord struct {
	Latitude    float64        `json:"latitude" yaml:"latitude"`
	Longitude   float64        `json:"longitude" yaml:"longitude"`
	EventDate   string         `json:"event_date,omitempty" yaml:"event_date,omitempty"` // YYYY-MM-DD, or a shorter prefix when imprecise
	CountryCode string         `json:"country_code,omitempty" yaml:"country_code,omitempty"`
	Source      types.SourceID `json:"source" yaml:"source"`
}

// Key is the natural key: coordinates (5 decimals), event date and source.
func (d DistributionRecord) Key() string {
	return fmt.Sprintf("%s|%.5f|%.5f|%s", d.Source, d.Latitude, d.Longitude, d.EventDate)
}

// LiteratureRecord is one bibliographic reference linked to an entity.
type LiteratureRecord struct {
	Title     string         `json:"title" yaml:"title"`
	Authors   string         `json:"authors,omitempty" yaml:"authors,omitempty"`
	Year      int            `json:"year,omitempty" yaml:"year,omitempty"`
	Journal   string         `json:"journal,omitempty" yaml:"journal,omitempty"`
	DOI       string         `json:"doi,omitempty" yaml:"doi,omitempty"`
	URL       string         `json:"url,omitempty" yaml:"url,omitempty"`
	Abstract  string         `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	FullText  bool           `json:"full_text" yaml:"full_text"`
	Relevance float64        `json:"relevance" yaml:"relevance"`
	Source    types.SourceID `json:"source" yaml:"source"`
}

// Key is the natural key: source plus DOI, else URL, else normalized title.
func (l LiteratureRecord) Key() string {
	switch {
	case l.DOI != "":
		return fmt.Sprintf("%s|doi:%s", l.Source, strings.ToLower(strings.TrimSpace(l.DOI)))
	case l.URL != "":
		return fmt.Sprintf("%s|url:%s", l.Source, strings.TrimSpace(l.URL))
	default:
		return fmt.Sprintf("%s|title:%s", l.Source, NormalizeName(l.Title))
	}
}

// Citation formats the reference on one line.
func (l LiteratureRecord) Citation() string {
	var sb strings.Builder
	if l.Authors != "" {
		sb.WriteString(l.Authors)
		sb.WriteString(" ")
	}
	if l.Year > 0 {
		fmt.Fprintf(&sb, "(%d) ", l.Year)
	}
	sb.WriteString(l.Title)
	if l.Journal != "" {
		sb.WriteString(". ")
		sb.WriteString(l.Journal)
	}
	return sb.String()
}

// MediaRecord is one image linked to an entity.
type MediaRecord struct {
	URL     string         `json:"url" yaml:"url"`
	Caption string         `json:"caption,omitempty" yaml:"caption,omitempty"`
	License string         `json:"license,omitempty" yaml:"license,omitempty"`
	Rights  string         `json:"rights,omitempty" yaml:"rights,omitempty"`
	Source  types.SourceID `json:"source" yaml:"source"`
}

// Key is the natural key of a media record.
func (m MediaRecord) Key() string {
	return strings.TrimSpace(m.URL)
}

// Children are the records linked to one entity.
type Children struct {
	Distributions []DistributionRecord `json:"distributions" yaml:"distributions"`
	Literature    []LiteratureRecord   `json:"literature" yaml:"literature"`
	Media         []MediaRecord        `json:"media" yaml:"media"`
}

// Sort orders children deterministically: distributions and media by key,
// literature by descending relevance then key.
func (c *Children) Sort() {
	slices.SortFunc(c.Distributions, func(a, b DistributionRecord) int {
		return strings.Compare(a.Key(), b.Key())
	})
	slices.SortFunc(c.Media, func(a, b MediaRecord) int {
		return strings.Compare(a.Key(), b.Key())
	})
	slices.SortFunc(c.Literature, func(a, b LiteratureRecord) int {
		if r := cmp.Compare(b.Relevance, a.Relevance); r != 0 {
			return r
		}
		return strings.Compare(a.Key(), b.Key())
	})
}

// ClampRelevance forces a relevance score into [0,1].
func ClampRelevance(v float64) float64 {
	return min(max(v, 0), 1)
}
