package taxa

// Profile is the unified answer to a resolve call.
type Profile struct {
	Entity *Entity `json:"entity" yaml:"entity"`
	Children
	Completeness float64 `json:"completeness" yaml:"completeness"`

	// Partial is set when the research session that produced this profile
	// ran out of budget before the reasoner stopped it.
	Partial bool `json:"partial" yaml:"partial"`

	// FromStore is set when the profile was served without research.
	FromStore bool `json:"from_store" yaml:"from_store"`
}

// NewProfile assembles a profile and computes its completeness.
func NewProfile(e *Entity, c Children) *Profile {
	if c.Distributions == nil {
		c.Distributions = []DistributionRecord{}
	}
	if c.Literature == nil {
		c.Literature = []LiteratureRecord{}
	}
	if c.Media == nil {
		c.Media = []MediaRecord{}
	}
	c.Sort()
	return &Profile{
		Entity:       e,
		Children:     c,
		Completeness: Completeness(e, c),
	}
}
