// Package taxa defines the taxamap data model: canonical entities, raw
// per-source captures, the child records linked to an entity, and the
// completeness score derived from them.
//
// Scalar entity fields are addressed by dotted paths (see Fields) so the
// merger and the record store can treat every tracked value uniformly
// without reflection.
package taxa
