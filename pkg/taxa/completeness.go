package taxa

// Category is one information category tracked by the completeness score.
type Category string

// Categories.
const (
	CategoryTaxonomy     Category = "taxonomy"
	CategoryMorphology   Category = "morphology"
	CategoryEcology      Category = "ecology"
	CategoryDistribution Category = "distribution"
	CategoryLiterature   Category = "literature"
	CategoryImagery      Category = "imagery"
)

// Weights are integer shares of 100 so sums are exact.
var weights = []struct {
	category Category
	weight   int
}{
	{CategoryTaxonomy, 10},
	{CategoryMorphology, 20},
	{CategoryEcology, 15},
	{CategoryDistribution, 20},
	{CategoryLiterature, 20},
	{CategoryImagery, 15},
}

// Weight returns the fixed weight of a category in [0,1].
func Weight(c Category) float64 {
	for _, w := range weights {
		if w.category == c {
			return float64(w.weight) / 100
		}
	}
	return 0
}

// Present reports which categories have data.
func Present(e *Entity, c Children) map[Category]bool {
	present := make(map[Category]bool, len(weights))
	if e != nil {
		present[CategoryTaxonomy] = e.ScientificName != "" && e.Rank != ""
		present[CategoryMorphology] = e.Morphology.Description != ""
		present[CategoryEcology] = e.Ecology.Habitat != "" ||
			e.Ecology.Marine != nil || e.Ecology.Brackish != nil ||
			e.Ecology.Freshwater != nil || e.Ecology.Terrestrial != nil
	}
	present[CategoryDistribution] = len(c.Distributions) > 0
	present[CategoryLiterature] = len(c.Literature) > 0
	present[CategoryImagery] = len(c.Media) > 0
	return present
}

// Completeness computes the weighted completeness score in [0,1].
func Completeness(e *Entity, c Children) float64 {
	present := Present(e, c)
	total := 0
	for _, w := range weights {
		if present[w.category] {
			total += w.weight
		}
	}
	return float64(total) / 100
}
