package sqlite

import (
	"context"
	"database/sql"

	"github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/taxa"
	"github.com/agentstation/taxamap/pkg/types"
)

// writeChildren inserts child records, deduplicating on natural keys
// against rows already stored for the entity.
func writeChildren(ctx context.Context, tx *sql.Tx, id string, c taxa.Children) error {
	for _, d := range c.Distributions {
		if _, err := tx.ExecContext(ctx, `INSERT INTO distributions
			(entity_id, natural_key, latitude, longitude, event_date, country_code, source)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(entity_id, natural_key) DO UPDATE SET
				country_code = COALESCE(NULLIF(excluded.country_code, ''), distributions.country_code)`,
			id, d.Key(), d.Latitude, d.Longitude, d.EventDate, d.CountryCode, string(d.Source)); err != nil {
			return err
		}
	}

	for _, l := range c.Literature {
		if _, err := tx.ExecContext(ctx, `INSERT INTO literature
			(entity_id, natural_key, title, authors, year, journal, doi, url, abstract, full_text, relevance, source)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(entity_id, natural_key) DO UPDATE SET
				title = CASE WHEN excluded.relevance > literature.relevance THEN excluded.title ELSE literature.title END,
				authors = COALESCE(NULLIF(excluded.authors, ''), literature.authors),
				year = MAX(excluded.year, literature.year),
				journal = COALESCE(NULLIF(excluded.journal, ''), literature.journal),
				abstract = COALESCE(NULLIF(excluded.abstract, ''), literature.abstract),
				full_text = MAX(excluded.full_text, literature.full_text),
				relevance = MAX(excluded.relevance, literature.relevance)`,
			id, l.Key(), l.Title, l.Authors, l.Year, l.Journal, l.DOI, l.URL, l.Abstract,
			l.FullText, l.Relevance, string(l.Source)); err != nil {
			return err
		}
	}

	for _, m := range c.Media {
		if _, err := tx.ExecContext(ctx, `INSERT INTO media
			(entity_id, url, caption, license, rights, source)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(entity_id, url) DO UPDATE SET
				caption = COALESCE(NULLIF(media.caption, ''), excluded.caption),
				license = COALESCE(NULLIF(media.license, ''), excluded.license),
				rights = COALESCE(NULLIF(media.rights, ''), excluded.rights)`,
			id, m.URL, m.Caption, m.License, m.Rights, string(m.Source)); err != nil {
			return err
		}
	}
	return nil
}

// Children implements store.Store.
func (s *Store) Children(ctx context.Context, id string) (taxa.Children, error) {
	c := taxa.Children{
		Distributions: []taxa.DistributionRecord{},
		Literature:    []taxa.LiteratureRecord{},
		Media:         []taxa.MediaRecord{},
	}

	rows, err := s.db.QueryContext(ctx, `SELECT latitude, longitude, event_date, country_code, source
		FROM distributions WHERE entity_id = ?`, id)
	if err != nil {
		return c, errors.WrapStore("children", id, err)
	}
	for rows.Next() {
		var d taxa.DistributionRecord
		var src string
		if err := rows.Scan(&d.Latitude, &d.Longitude, &d.EventDate, &d.CountryCode, &src); err != nil {
			rows.Close()
			return c, errors.WrapStore("children", id, err)
		}
		d.Source = types.SourceID(src)
		c.Distributions = append(c.Distributions, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return c, errors.WrapStore("children", id, err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT title, authors, year, journal, doi, url, abstract, full_text, relevance, source
		FROM literature WHERE entity_id = ?`, id)
	if err != nil {
		return c, errors.WrapStore("children", id, err)
	}
	for rows.Next() {
		var l taxa.LiteratureRecord
		var src string
		if err := rows.Scan(&l.Title, &l.Authors, &l.Year, &l.Journal, &l.DOI, &l.URL, &l.Abstract,
			&l.FullText, &l.Relevance, &src); err != nil {
			rows.Close()
			return c, errors.WrapStore("children", id, err)
		}
		l.Source = types.SourceID(src)
		c.Literature = append(c.Literature, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return c, errors.WrapStore("children", id, err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT url, caption, license, rights, source
		FROM media WHERE entity_id = ?`, id)
	if err != nil {
		return c, errors.WrapStore("children", id, err)
	}
	for rows.Next() {
		var m taxa.MediaRecord
		var src string
		if err := rows.Scan(&m.URL, &m.Caption, &m.License, &m.Rights, &src); err != nil {
			rows.Close()
			return c, errors.WrapStore("children", id, err)
		}
		m.Source = types.SourceID(src)
		c.Media = append(c.Media, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return c, errors.WrapStore("children", id, err)
	}

	c.Sort()
	return c, nil
}
