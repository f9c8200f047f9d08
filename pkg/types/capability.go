//nolint:revive // Package types provides common type definitions
package types

import "slices"

// Capability names one operation a source exposes to the research orchestrator.
// The set is closed: dispatch never happens on names outside Capabilities().
type Capability string

// String returns the string representation of a capability.
func (c Capability) String() string {
	return string(c)
}

// Capabilities.
const (
	LookupByName   Capability = "lookup_by_name"
	GetOccurrences Capability = "get_occurrences"
	GetMedia       Capability = "get_media"
	GetLiterature  Capability = "get_literature"
	GetMorphology  Capability = "get_morphology"
)

// Capabilities returns every capability in a stable order.
func Capabilities() []Capability {
	return []Capability{LookupByName, GetOccurrences, GetMedia, GetLiterature, GetMorphology}
}

// IsValid returns true if c is a member of the closed capability set.
func (c Capability) IsValid() bool {
	return slices.Contains(Capabilities(), c)
}
