// Package reconciler merges per-source raw captures into one canonical
// entity. Field conflicts are settled by a Strategy (normally the configured
// authority table); the merge is order-independent and idempotent, and
// child records are deduplicated by natural key.
package reconciler

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/agentstation/utc"
	"github.com/rs/zerolog"

	"github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/provenance"
	"github.com/agentstation/taxamap/pkg/taxa"
	"github.com/agentstation/taxamap/pkg/types"
)

// externalIDPrefix is the field path prefix for external identifiers.
const externalIDPrefix = "external_ids."

// Merger folds raw captures into a canonical entity.
type Merger interface {
	// Merge combines existing (may be nil) with captures. It never mutates
	// its inputs.
	Merge(existing *taxa.Entity, captures []taxa.RawCapture) (*Result, error)
}

// Result is the outcome of one merge.
type Result struct {
	Entity     *taxa.Entity
	Children   taxa.Children
	Score      float64
	Conflicts  []provenance.ConflictInfo
	Provenance provenance.Map
	Skipped    []string // IDs of captures that could not be decoded
}

// merger is the default Merger.
type merger struct {
	strategy Strategy
	tracking bool
	logger   *zerolog.Logger
}

// New creates a merger. A strategy (or authority table) is required.
func New(opts ...Option) (Merger, error) {
	o, err := newOptions(opts...)
	if err != nil {
		return nil, err
	}
	if o.strategy == nil {
		return nil, errors.NewConfigError("reconciler", "a priority table or strategy is required", nil)
	}
	return &merger{strategy: o.strategy, tracking: o.tracking, logger: o.logger}, nil
}

// collection accumulates candidates while walking captures.
type collection struct {
	candidates  map[string][]Candidate
	retractions map[string][]Candidate
	synonyms    map[string]string // normalized -> display form
	children    taxa.Children
}

func newCollection() *collection {
	return &collection{
		candidates:  make(map[string][]Candidate),
		retractions: make(map[string][]Candidate),
		synonyms:    make(map[string]string),
	}
}

func (c *collection) add(path string, cand Candidate) {
	if strings.TrimSpace(cand.Value) == "" {
		return
	}
	c.candidates[path] = append(c.candidates[path], cand)
}

func (c *collection) addSynonym(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	key := taxa.NormalizeName(name)
	if cur, ok := c.synonyms[key]; !ok || name < cur {
		c.synonyms[key] = name
	}
}

// Merge implements Merger.
func (m *merger) Merge(existing *taxa.Entity, captures []taxa.RawCapture) (*Result, error) {
	out := existing.Clone()
	if out == nil {
		out = &taxa.Entity{}
	}
	if out.Provenance == nil {
		out.Provenance = make(map[string]taxa.FieldSource)
	}

	col := newCollection()
	if existing != nil {
		m.collectExisting(existing, col)
	}

	result := &Result{}
	for _, capture := range sortedCaptures(captures) {
		if err := m.collectCapture(capture, col); err != nil {
			m.logger.Warn().
				Err(err).
				Str("capture_id", capture.ID).
				Str("source", capture.Source.String()).
				Str("capability", capture.Capability.String()).
				Msg("Skipping undecodable capture")
			result.Skipped = append(result.Skipped, capture.ID)
		}
	}

	tracker := provenance.NewTracker(m.tracking)
	result.Conflicts = m.resolveFields(out, col, tracker)

	out.Synonyms = out.Synonyms[:0:0]
	own := taxa.NormalizeName(out.ScientificName)
	for key, name := range col.synonyms {
		if key != own {
			out.Synonyms = append(out.Synonyms, name)
		}
	}
	sort.Strings(out.Synonyms)
	if len(out.Synonyms) == 0 {
		out.Synonyms = nil
	}

	result.Children = dedupeChildren(col.children)
	result.Entity = out
	result.Score = taxa.Completeness(out, result.Children)
	result.Provenance = tracker.Map()
	return result, nil
}

// collectExisting turns the stored entity into candidates carrying their
// stored provenance, so new captures compete with them on equal terms.
func (m *merger) collectExisting(e *taxa.Entity, col *collection) {
	for _, f := range taxa.Fields {
		col.add(f.Path, existingCandidate(e, f.Path, f.Get(e)))
	}
	for source, id := range e.ExternalIDs {
		path := externalIDPrefix + source.String()
		col.add(path, existingCandidate(e, path, id))
	}
	for _, s := range e.Synonyms {
		col.addSynonym(s)
	}
}

func existingCandidate(e *taxa.Entity, path, value string) Candidate {
	fs, ok := e.Provenance[path]
	if !ok || fs.Source == "" {
		return Candidate{Source: types.LocalID, Value: value}
	}
	return Candidate{Source: fs.Source, Value: value, FetchedAt: fs.FetchedAt.Time}
}

// collectCapture decodes one capture into candidates and child records.
func (m *merger) collectCapture(c taxa.RawCapture, col *collection) error {
	at := c.FetchedAt.Time
	cand := func(v string) Candidate { return Candidate{Source: c.Source, Value: v, FetchedAt: at} }

	for _, path := range c.Retracted {
		col.retractions[path] = append(col.retractions[path], cand(""))
	}

	switch c.Capability {
	case types.LookupByName:
		var p taxa.TaxonomyPayload
		if err := c.Decode(&p); err != nil {
			return err
		}
		col.add(taxa.FieldScientificName, cand(p.ScientificName))
		col.add(taxa.FieldAuthority, cand(p.Authority))
		col.add(taxa.FieldRank, cand(p.Rank))
		col.add(taxa.FieldStatus, cand(string(p.Status)))
		col.add(taxa.FieldAcceptedName, cand(p.AcceptedName))
		col.add(taxa.FieldKingdom, cand(p.Classification.Kingdom))
		col.add(taxa.FieldPhylum, cand(p.Classification.Phylum))
		col.add(taxa.FieldClass, cand(p.Classification.Class))
		col.add(taxa.FieldOrder, cand(p.Classification.Order))
		col.add(taxa.FieldFamily, cand(p.Classification.Family))
		col.add(taxa.FieldGenus, cand(p.Classification.Genus))
		if p.Ecology != nil {
			eco := &taxa.Entity{Ecology: *p.Ecology}
			for _, path := range []string{taxa.FieldHabitat, taxa.FieldMarine, taxa.FieldBrackish, taxa.FieldFreshwater, taxa.FieldTerrestrial} {
				f, _ := taxa.FieldByPath(path)
				col.add(path, cand(f.Get(eco)))
			}
		}
		if p.SourceRecordID != "" {
			col.add(externalIDPrefix+c.Source.String(), cand(p.SourceRecordID))
		}
		for source, id := range p.ExternalIDs {
			col.add(externalIDPrefix+source.String(), cand(id))
		}
		for _, s := range p.Synonyms {
			col.addSynonym(s)
		}

	case types.GetMorphology:
		var p taxa.MorphologyPayload
		if err := c.Decode(&p); err != nil {
			return err
		}
		col.add(taxa.FieldMorphology, cand(p.Description))
		col.add(taxa.FieldMorphologyURL, cand(p.SourceURL))
		col.add(taxa.FieldHabitat, cand(p.Habitat))
		col.children.Media = append(col.children.Media, withSource(p.Media, c.Source)...)

	case types.GetOccurrences:
		var p taxa.OccurrencePayload
		if err := c.Decode(&p); err != nil {
			return err
		}
		for _, d := range p.Occurrences {
			if d.Source == "" {
				d.Source = c.Source
			}
			col.children.Distributions = append(col.children.Distributions, d)
		}

	case types.GetMedia:
		var p taxa.MediaPayload
		if err := c.Decode(&p); err != nil {
			return err
		}
		col.children.Media = append(col.children.Media, withSource(p.Media, c.Source)...)

	case types.GetLiterature:
		var p taxa.LiteraturePayload
		if err := c.Decode(&p); err != nil {
			return err
		}
		for _, l := range p.References {
			if l.Source == "" {
				l.Source = c.Source
			}
			col.children.Literature = append(col.children.Literature, l)
		}

	default:
		return errors.NewValidationError("capability", c.Capability, "unknown capability")
	}
	return nil
}

// resolveFields picks a winner for every field with candidates and applies retractions.
func (m *merger) resolveFields(out *taxa.Entity, col *collection, tracker provenance.Tracker) []provenance.ConflictInfo {
	paths := make([]string, 0, len(col.candidates))
	for path := range col.candidates {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var conflicts []provenance.ConflictInfo
	for _, path := range paths {
		cands := col.candidates[path]
		winner, prio, reason := choose(m.strategy, path, cands)

		if by, ok := m.retracted(path, winner, prio, col.retractions[path]); ok {
			m.setField(out, path, "")
			delete(out.Provenance, path)
			tracker.Track(path, provenance.Provenance{
				Source:        by.Source,
				Timestamp:     by.FetchedAt,
				Priority:      m.strategy.Priority(path, by.Source),
				Reason:        "retracted",
				PreviousValue: winner.Value,
			})
			continue
		}

		m.setField(out, path, winner.Value)
		out.Provenance[path] = taxa.FieldSource{Source: winner.Source, FetchedAt: utc.New(winner.FetchedAt)}

		for _, c := range cands {
			p := provenance.Provenance{
				Source:    c.Source,
				Value:     c.Value,
				Timestamp: c.FetchedAt,
				Priority:  m.strategy.Priority(path, c.Source),
			}
			if c == winner {
				p.Reason = reason
			}
			tracker.Track(path, p)
		}

		if conflict, ok := conflictFor(path, cands, winner, reason); ok {
			m.logger.Debug().
				Str("field", path).
				Str("selected_source", winner.Source.String()).
				Str("selected_value", winner.Value).
				Int("candidates", len(cands)).
				Msg("Resolved field conflict")
			conflicts = append(conflicts, conflict)
		}
	}
	return conflicts
}

// retracted reports whether a retraction outranks the winning value: a
// higher priority always does, an equal priority does when it is not older.
func (m *merger) retracted(path string, winner Candidate, prio int, rs []Candidate) (Candidate, bool) {
	var (
		by    Candidate
		found bool
	)
	for _, r := range rs {
		rp := m.strategy.Priority(path, r.Source)
		if rp > prio || (rp == prio && !r.FetchedAt.Before(winner.FetchedAt)) {
			if !found || r.Source < by.Source {
				by, found = r, true
			}
		}
	}
	return by, found
}

func (m *merger) setField(out *taxa.Entity, path, value string) {
	if source, ok := strings.CutPrefix(path, externalIDPrefix); ok {
		if value == "" {
			delete(out.ExternalIDs, types.SourceID(source))
			return
		}
		if out.ExternalIDs == nil {
			out.ExternalIDs = make(map[types.SourceID]string)
		}
		out.ExternalIDs[types.SourceID(source)] = value
		return
	}
	if f, ok := taxa.FieldByPath(path); ok {
		f.Set(out, value)
	}
}

// conflictFor describes disagreement among candidates, if any.
func conflictFor(path string, cands []Candidate, winner Candidate, reason string) (provenance.ConflictInfo, bool) {
	seen := make(map[string]types.SourceID)
	for _, c := range cands {
		if cur, ok := seen[c.Value]; !ok || c.Source < cur {
			seen[c.Value] = c.Source
		}
	}
	if len(seen) < 2 {
		return provenance.ConflictInfo{}, false
	}
	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Strings(values)
	sources := make([]types.SourceID, len(values))
	for i, v := range values {
		sources[i] = seen[v]
	}
	return provenance.ConflictInfo{
		Field:          path,
		Sources:        sources,
		Values:         values,
		Resolution:     reason,
		SelectedSource: winner.Source,
		SelectedValue:  winner.Value,
	}, true
}

func sortedCaptures(captures []taxa.RawCapture) []taxa.RawCapture {
	out := slices.Clone(captures)
	slices.SortStableFunc(out, func(a, b taxa.RawCapture) int {
		if c := a.FetchedAt.Compare(b.FetchedAt.Time); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func withSource(media []taxa.MediaRecord, source types.SourceID) []taxa.MediaRecord {
	out := make([]taxa.MediaRecord, 0, len(media))
	for _, md := range media {
		if md.Source == "" {
			md.Source = source
		}
		out = append(out, md)
	}
	return out
}

// dedupeChildren keeps one record per natural key, chosen by a total order
// so the survivor does not depend on input order.
func dedupeChildren(in taxa.Children) taxa.Children {
	var out taxa.Children

	dists := make(map[string]taxa.DistributionRecord)
	for _, d := range in.Distributions {
		if d.Latitude < -90 || d.Latitude > 90 || d.Longitude < -180 || d.Longitude > 180 {
			continue
		}
		if cur, ok := dists[d.Key()]; !ok || betterDistribution(d, cur) {
			dists[d.Key()] = d
		}
	}
	for _, d := range dists {
		out.Distributions = append(out.Distributions, d)
	}

	lits := make(map[string]taxa.LiteratureRecord)
	for _, l := range in.Literature {
		if l.Title == "" && l.DOI == "" && l.URL == "" {
			continue
		}
		l.Relevance = taxa.ClampRelevance(l.Relevance)
		if cur, ok := lits[l.Key()]; !ok || betterLiterature(l, cur) {
			lits[l.Key()] = l
		}
	}
	for _, l := range lits {
		out.Literature = append(out.Literature, l)
	}

	media := make(map[string]taxa.MediaRecord)
	for _, md := range in.Media {
		if md.Key() == "" {
			continue
		}
		if cur, ok := media[md.Key()]; !ok || betterMedia(md, cur) {
			media[md.Key()] = md
		}
	}
	for _, md := range media {
		out.Media = append(out.Media, md)
	}

	out.Sort()
	return out
}

func betterDistribution(a, b taxa.DistributionRecord) bool {
	if (a.CountryCode != "") != (b.CountryCode != "") {
		return a.CountryCode != ""
	}
	return a.CountryCode < b.CountryCode
}

func betterLiterature(a, b taxa.LiteratureRecord) bool {
	if a.Relevance != b.Relevance {
		return a.Relevance > b.Relevance
	}
	if a.FullText != b.FullText {
		return a.FullText
	}
	if len(a.Abstract) != len(b.Abstract) {
		return len(a.Abstract) > len(b.Abstract)
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func betterMedia(a, b taxa.MediaRecord) bool {
	if (a.Caption != "") != (b.Caption != "") {
		return a.Caption != ""
	}
	if a.Source != b.Source {
		return a.Source < b.Source
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}
