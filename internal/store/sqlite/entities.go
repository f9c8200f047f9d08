package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"

	"github.com/google/uuid"

	"github.com/agentstation/utc"

	"github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/logging"
	"github.com/agentstation/taxamap/pkg/store"
	"github.com/agentstation/taxamap/pkg/taxa"
	"github.com/agentstation/taxamap/pkg/types"
)

// Name kinds in entity_names, in lookup preference order.
const (
	kindScientific = "scientific"
	kindAccepted   = "accepted"
	kindSynonym    = "synonym"
	kindQuery      = "query"
)

const entityColumns = `id, scientific_name, authority, rank, status, accepted_name,
	kingdom, phylum, class, taxon_order, family, genus,
	morphology_description, morphology_source_url,
	habitat, marine, brackish, freshwater, terrestrial,
	created_at, updated_at`

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, ref string) (*taxa.Entity, error) {
	r := store.ParseRef(ref)
	if r.Value == "" {
		return nil, errors.NewValidationError("ref", ref, "cannot be empty")
	}

	id, err := s.resolveRef(ctx, r)
	if err != nil {
		return nil, err
	}
	e, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, errors.NewNotFoundError("entity", ref, "")
	}
	return e, nil
}

func (s *Store) resolveRef(ctx context.Context, r store.Ref) (string, error) {
	var (
		query string
		args  []any
	)
	switch r.Kind {
	case store.RefID:
		return r.Value, nil
	case store.RefExternal:
		query = `SELECT entity_id FROM external_ids WHERE source = ? AND value = ? ORDER BY rowid LIMIT 1`
		args = []any{string(r.Source), r.Value}
	default:
		query = `SELECT n.entity_id FROM entity_names n
			JOIN entities e ON e.id = n.entity_id
			WHERE n.name_key = ?
			ORDER BY CASE n.kind
				WHEN 'scientific' THEN 0
				WHEN 'accepted' THEN 1
				WHEN 'synonym' THEN 2
				ELSE 3 END, e.created_at, e.id
			LIMIT 1`
		args = []any{r.Value}
	}

	var id string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", errors.NewNotFoundError("entity", r.Value, "")
	}
	if err != nil {
		return "", errors.WrapStore("get", r.Value, err)
	}
	return id, nil
}

// load reads an entity with its names, external ids and provenance.
// A missing entity yields (nil, nil).
func (s *Store) load(ctx context.Context, id string) (*taxa.Entity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)

	var (
		e                                      taxa.Entity
		marine, brackish, freshwater, terrestr sql.NullBool
		created, updated                       string
	)
	err := row.Scan(&e.ID, &e.ScientificName, &e.Authority, &e.Rank, &e.Status, &e.AcceptedName,
		&e.Classification.Kingdom, &e.Classification.Phylum, &e.Classification.Class,
		&e.Classification.Order, &e.Classification.Family, &e.Classification.Genus,
		&e.Morphology.Description, &e.Morphology.SourceURL,
		&e.Ecology.Habitat, &marine, &brackish, &freshwater, &terrestr,
		&created, &updated)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapStore("get", id, err)
	}
	e.Ecology.Marine = boolPtr(marine)
	e.Ecology.Brackish = boolPtr(brackish)
	e.Ecology.Freshwater = boolPtr(freshwater)
	e.Ecology.Terrestrial = boolPtr(terrestr)
	if e.CreatedAt, err = parseTime(created); err != nil {
		return nil, errors.WrapStore("get", id, err)
	}
	if e.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, errors.WrapStore("get", id, err)
	}

	if err := s.loadSynonyms(ctx, &e); err != nil {
		return nil, err
	}
	if err := s.loadExternalIDs(ctx, &e); err != nil {
		return nil, err
	}
	if err := s.loadProvenance(ctx, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) loadSynonyms(ctx context.Context, e *taxa.Entity) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM entity_names WHERE entity_id = ? AND kind = ? ORDER BY name`, e.ID, kindSynonym)
	if err != nil {
		return errors.WrapStore("get", e.ID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return errors.WrapStore("get", e.ID, err)
		}
		e.Synonyms = append(e.Synonyms, name)
	}
	return errors.WrapStore("get", e.ID, rows.Err())
}

func (s *Store) loadExternalIDs(ctx context.Context, e *taxa.Entity) error {
	rows, err := s.db.QueryContext(ctx, `SELECT source, value FROM external_ids WHERE entity_id = ?`, e.ID)
	if err != nil {
		return errors.WrapStore("get", e.ID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var src, value string
		if err := rows.Scan(&src, &value); err != nil {
			return errors.WrapStore("get", e.ID, err)
		}
		if e.ExternalIDs == nil {
			e.ExternalIDs = make(map[types.SourceID]string)
		}
		e.ExternalIDs[types.SourceID(src)] = value
	}
	return errors.WrapStore("get", e.ID, rows.Err())
}

func (s *Store) loadProvenance(ctx context.Context, e *taxa.Entity) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT field, source, fetched_at FROM field_provenance WHERE entity_id = ?`, e.ID)
	if err != nil {
		return errors.WrapStore("get", e.ID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var field, src, fetched string
		if err := rows.Scan(&field, &src, &fetched); err != nil {
			return errors.WrapStore("get", e.ID, err)
		}
		at, err := parseTime(fetched)
		if err != nil {
			return errors.WrapStore("get", e.ID, err)
		}
		if e.Provenance == nil {
			e.Provenance = make(map[string]taxa.FieldSource)
		}
		e.Provenance[field] = taxa.FieldSource{Source: types.SourceID(src), FetchedAt: at}
	}
	return errors.WrapStore("get", e.ID, rows.Err())
}

// Upsert implements store.Store.
func (s *Store) Upsert(ctx context.Context, e *taxa.Entity, c taxa.Children, names ...string) (string, error) {
	if err := validateEntity(e); err != nil {
		return "", err
	}
	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}

	unlock := s.locks.lock(id)
	defer unlock()
	if err := s.write(ctx, id, e, c, names); err != nil {
		return "", err
	}
	return id, nil
}

// newEntityKey serializes updates that found no stored entity, so two of
// them cannot both create one.
const newEntityKey = "\x00new"

// Update implements store.Store. The entity is re-read after its lock is
// taken; fn always sees the latest committed state.
func (s *Store) Update(ctx context.Context, refs []string, fn store.UpdateFunc, names ...string) (string, error) {
	id, err := s.firstMatch(ctx, refs)
	if err != nil {
		return "", err
	}
	if id == "" {
		unlockNew := s.locks.lock(newEntityKey)
		defer unlockNew()
		if id, err = s.firstMatch(ctx, refs); err != nil {
			return "", err
		}
		if id == "" {
			return s.apply(ctx, nil, fn, names)
		}
	}

	unlock := s.locks.lock(id)
	defer unlock()
	existing, err := s.load(ctx, id)
	if err != nil {
		return "", err
	}
	if existing == nil {
		return "", errors.NewNotFoundError("entity", id, "")
	}
	return s.apply(ctx, existing, fn, names)
}

// apply runs fn and writes its result under the id of existing, or a new
// one. The caller holds the lock of that id.
func (s *Store) apply(ctx context.Context, existing *taxa.Entity, fn store.UpdateFunc, names []string) (string, error) {
	e, c, err := fn(existing)
	if err != nil {
		return "", err
	}
	if err := validateEntity(e); err != nil {
		return "", err
	}
	id := uuid.NewString()
	if existing != nil {
		id = existing.ID
	}
	e.ID = id
	if err := s.write(ctx, id, e, c, names); err != nil {
		return "", err
	}
	return id, nil
}

// firstMatch returns the id of the first ref naming a stored entity, or ""
// when none does.
func (s *Store) firstMatch(ctx context.Context, refs []string) (string, error) {
	for _, ref := range refs {
		r := store.ParseRef(ref)
		if r.Value == "" {
			continue
		}
		id, err := s.resolveRef(ctx, r)
		if errors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return "", err
		}
		if r.Kind == store.RefID {
			var one int
			err := s.db.QueryRowContext(ctx, `SELECT 1 FROM entities WHERE id = ?`, id).Scan(&one)
			if stderrors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return "", errors.WrapStore("get", id, err)
			}
		}
		return id, nil
	}
	return "", nil
}

func validateEntity(e *taxa.Entity) error {
	if e == nil || strings.TrimSpace(e.ScientificName) == "" {
		return errors.NewValidationError("entity", nil, "scientific name is required")
	}
	if e.ID != "" {
		if _, err := uuid.Parse(e.ID); err != nil {
			return errors.NewValidationError("entity.id", e.ID, "not a canonical id")
		}
	}
	return nil
}

// write commits an entity and its children in one transaction. The caller
// holds the lock of id.
func (s *Store) write(ctx context.Context, id string, e *taxa.Entity, c taxa.Children, names []string) error {
	logger := logging.FromContext(ctx).With().Str("entity_id", id).Logger()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapStore("upsert", id, err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && !stderrors.Is(rbErr, sql.ErrTxDone) {
				logger.Error().Err(rbErr).Msg("rollback failed")
			}
		}
	}()

	steps := []func(context.Context, *sql.Tx, string, *taxa.Entity) error{
		writeEntity,
		writeNames,
		writeExternalIDs,
		writeProvenance,
	}
	for _, step := range steps {
		if err := step(ctx, tx, id, e); err != nil {
			logger.Error().Err(err).Msg("entity upsert failed")
			return errors.WrapStore("upsert", id, err)
		}
	}
	if err := writeQueryKeys(ctx, tx, id, names); err != nil {
		logger.Error().Err(err).Msg("entity upsert failed")
		return errors.WrapStore("upsert", id, err)
	}
	if err := writeChildren(ctx, tx, id, c); err != nil {
		logger.Error().Err(err).Msg("children upsert failed")
		return errors.WrapStore("upsert", id, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error().Err(err).Msg("commit failed")
		return errors.WrapStore("upsert", id, err)
	}
	committed = true
	logger.Debug().
		Int("distributions", len(c.Distributions)).
		Int("literature", len(c.Literature)).
		Int("media", len(c.Media)).
		Msg("entity upserted")
	return nil
}

func writeEntity(ctx context.Context, tx *sql.Tx, id string, e *taxa.Entity) error {
	now := formatTime(utc.Now())
	created := formatTime(e.CreatedAt)
	if created == "" {
		created = now
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO entities (`+entityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			scientific_name = excluded.scientific_name,
			authority = excluded.authority,
			rank = excluded.rank,
			status = excluded.status,
			accepted_name = excluded.accepted_name,
			kingdom = excluded.kingdom,
			phylum = excluded.phylum,
			class = excluded.class,
			taxon_order = excluded.taxon_order,
			family = excluded.family,
			genus = excluded.genus,
			morphology_description = excluded.morphology_description,
			morphology_source_url = excluded.morphology_source_url,
			habitat = excluded.habitat,
			marine = excluded.marine,
			brackish = excluded.brackish,
			freshwater = excluded.freshwater,
			terrestrial = excluded.terrestrial,
			updated_at = excluded.updated_at`,
		id, e.ScientificName, e.Authority, e.Rank, string(e.Status), e.AcceptedName,
		e.Classification.Kingdom, e.Classification.Phylum, e.Classification.Class,
		e.Classification.Order, e.Classification.Family, e.Classification.Genus,
		e.Morphology.Description, e.Morphology.SourceURL,
		e.Ecology.Habitat, nullBool(e.Ecology.Marine), nullBool(e.Ecology.Brackish),
		nullBool(e.Ecology.Freshwater), nullBool(e.Ecology.Terrestrial),
		created, now)
	return err
}

// writeNames replaces the derived name index; query keys accumulate.
func writeNames(ctx context.Context, tx *sql.Tx, id string, e *taxa.Entity) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM entity_names WHERE entity_id = ? AND kind <> ?`, id, kindQuery); err != nil {
		return err
	}
	if err := insertName(ctx, tx, id, e.ScientificName, kindScientific); err != nil {
		return err
	}
	if err := insertName(ctx, tx, id, e.AcceptedName, kindAccepted); err != nil {
		return err
	}
	for _, n := range e.Synonyms {
		if err := insertName(ctx, tx, id, n, kindSynonym); err != nil {
			return err
		}
	}
	return nil
}

func writeQueryKeys(ctx context.Context, tx *sql.Tx, id string, names []string) error {
	for _, n := range names {
		if err := insertName(ctx, tx, id, n, kindQuery); err != nil {
			return err
		}
	}
	return nil
}

func insertName(ctx context.Context, tx *sql.Tx, id, name, kind string) error {
	name = strings.TrimSpace(name)
	key := taxa.NormalizeName(name)
	if key == "" {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO entity_names (name_key, entity_id, name, kind) VALUES (?, ?, ?, ?)
		ON CONFLICT(name_key, entity_id, kind) DO NOTHING`,
		key, id, name, kind)
	return err
}

func writeExternalIDs(ctx context.Context, tx *sql.Tx, id string, e *taxa.Entity) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM external_ids WHERE entity_id = ?`, id); err != nil {
		return err
	}
	for src, value := range e.ExternalIDs {
		if value == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO external_ids (entity_id, source, value) VALUES (?, ?, ?)`,
			id, string(src), value); err != nil {
			return err
		}
	}
	return nil
}

func writeProvenance(ctx context.Context, tx *sql.Tx, id string, e *taxa.Entity) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM field_provenance WHERE entity_id = ?`, id); err != nil {
		return err
	}
	for field, fs := range e.Provenance {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO field_provenance (entity_id, field, source, fetched_at) VALUES (?, ?, ?, ?)`,
			id, field, string(fs.Source), formatTime(fs.FetchedAt)); err != nil {
			return err
		}
	}
	return nil
}
