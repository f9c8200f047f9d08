//nolint:revive // Package types provides common type definitions
package types

import "slices"

// SourceID identifies an external data source (or the local store).
type SourceID string

// String returns the string representation of a source ID.
func (id SourceID) String() string {
	return string(id)
}

// Known source identifiers.
const (
	// WoRMSID is the World Register of Marine Species.
	WoRMSID SourceID = "worms"

	// GBIFID is the Global Biodiversity Information Facility.
	GBIFID SourceID = "gbif"

	// ZenodoID is the Zenodo research repository (figures and plates).
	ZenodoID SourceID = "zenodo"

	// PubMedID is NCBI PubMed / PubMed Central.
	PubMedID SourceID = "pubmed"

	// AlgaeBaseID is AlgaeBase species pages.
	AlgaeBaseID SourceID = "algaebase"

	// LocalID marks values that were already in the record store.
	LocalID SourceID = "local"
)

// SourceIDs returns all known source identifiers.
func SourceIDs() []SourceID {
	return []SourceID{WoRMSID, GBIFID, ZenodoID, PubMedID, AlgaeBaseID, LocalID}
}

// IsValid returns true if the SourceID is one of the defined constants.
func (id SourceID) IsValid() bool {
	return slices.Contains(SourceIDs(), id)
}
