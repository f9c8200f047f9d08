// Package types provides shared type definitions used across the taxamap packages.
//
// SourceID and Capability are referenced by the data model, the authority
// table, the source registry and the merger, so they live here to avoid
// import cycles. The package has zero dependencies.
//
//nolint:revive // Package name 'types' is appropriate for common type definitions
package types
