package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/taxa"
	"github.com/agentstation/taxamap/pkg/types"
)

// AppendRaw implements store.Store.
func (s *Store) AppendRaw(ctx context.Context, capture taxa.RawCapture) error {
	if capture.ID == "" {
		capture.ID = uuid.NewString()
	}
	if !capture.Source.IsValid() || !capture.Capability.IsValid() {
		return errors.NewValidationError("capture", capture.ID, "unknown source or capability")
	}
	if !json.Valid(capture.Payload) {
		return errors.NewValidationError("capture.payload", capture.ID, "payload is not valid JSON")
	}
	retracted, err := json.Marshal(capture.Retracted)
	if err != nil {
		return errors.WrapStore("append", capture.ID, err)
	}
	if capture.Retracted == nil {
		retracted = []byte("[]")
	}

	var entityID sql.NullString
	if capture.EntityID != "" {
		entityID = sql.NullString{String: capture.EntityID, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO raw_captures
		(id, source, capability, query_key, entity_id, fetched_at, payload, retracted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		capture.ID, string(capture.Source), string(capture.Capability), capture.QueryKey, entityID,
		formatTime(capture.FetchedAt), []byte(capture.Payload), string(retracted))
	if err != nil {
		s.logger.Error().Err(err).Str("capture_id", capture.ID).Msg("append capture failed")
		return errors.WrapStore("append", capture.ID, err)
	}
	return nil
}

// Captures implements store.Store.
func (s *Store) Captures(ctx context.Context, entityID string) ([]taxa.RawCapture, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, source, capability, query_key, fetched_at, payload, retracted
		FROM raw_captures WHERE entity_id = ? ORDER BY fetched_at, rowid`, entityID)
	if err != nil {
		return nil, errors.WrapStore("captures", entityID, err)
	}
	defer rows.Close()

	var out []taxa.RawCapture
	for rows.Next() {
		var (
			c                   taxa.RawCapture
			src, capability     string
			fetched, retractRaw string
			payload             []byte
		)
		if err := rows.Scan(&c.ID, &src, &capability, &c.QueryKey, &fetched, &payload, &retractRaw); err != nil {
			return nil, errors.WrapStore("captures", entityID, err)
		}
		c.Source = types.SourceID(src)
		c.Capability = types.Capability(capability)
		c.EntityID = entityID
		c.Payload = json.RawMessage(payload)
		if c.FetchedAt, err = parseTime(fetched); err != nil {
			return nil, errors.WrapStore("captures", entityID, err)
		}
		if err := json.Unmarshal([]byte(retractRaw), &c.Retracted); err != nil {
			return nil, errors.WrapParse("json", "raw_captures.retracted", err)
		}
		if len(c.Retracted) == 0 {
			c.Retracted = nil
		}
		out = append(out, c)
	}
	return out, errors.WrapStore("captures", entityID, rows.Err())
}
