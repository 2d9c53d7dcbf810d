// Package fuel turns a carbohydrate target, an activity duration and a set of
// products into a fuel plan. Everything here is pure: no I/O, no state.
package fuel

// MaxQuantity caps the servings of one product in a plan.
const MaxQuantity = 5

// MinDurationMinutes is the shortest duration for which GenerateTiming yields
// strictly increasing offsets at every quantity up to MaxQuantity.
const MinDurationMinutes = MaxQuantity + 1

// Acceptable match band for presentation. Not enforced by Allocate.
const (
	BandLow  = 90
	BandHigh = 110
)

// Product is a catalog item as seen by the allocator.
type Product struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	CarbsPerServing float64 `json:"carbs_per_serving"`
}

// Item is one product line in a plan. ProductName and CarbsPerServing are
// snapshots taken at planning time, decoupled from later catalog edits.
type Item struct {
	ProductID       string  `json:"product_id"`
	ProductName     string  `json:"product_name"`
	Quantity        int     `json:"quantity"`
	CarbsPerServing float64 `json:"carbs_per_serving"`
	TimingMinutes   []int   `json:"timing_minutes"`
	CarbsTotal      float64 `json:"carbs_total"`
}

// Plan is an ordered allocation. Items keep selection order, not time order.
// When Error is set, Items is empty and the totals carry no meaning.
type Plan struct {
	Items           []Item  `json:"items"`
	TotalCarbs      float64 `json:"total_carbs"`
	TargetCarbs     float64 `json:"target_carbs"`
	MatchPercentage int     `json:"match_percentage"`
	Warning         string  `json:"warning,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// WithinBand reports whether the match percentage is inside 90–110%.
func (p Plan) WithinBand() bool {
	if p.Error != "" {
		return false
	}
	return p.MatchPercentage >= BandLow && p.MatchPercentage <= BandHigh
}

// Includes reports whether productID has a line in the plan.
func (p Plan) Includes(productID string) bool {
	for _, it := range p.Items {
		if it.ProductID == productID {
			return true
		}
	}
	return false
}

// Reminder is one scheduled intake handed to the reminder collaborator.
type Reminder struct {
	OffsetMinutes   int     `json:"offset_minutes"`
	ProductName     string  `json:"product_name"`
	CarbsPerServing float64 `json:"carbs_per_serving"`
}
