package fuel

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

const (
	errTargetNotPositive = "Target carbs must be greater than 0"
	errNoProducts        = "No products available. Add products to skafferi."
)

// Allocate builds a plan with a single greedy pass, largest serving first.
//
// Each product is visited at most once and receives ceil(remaining/carbs)
// servings, capped at MaxQuantity. The pass stops as soon as the target is
// met, so the last item usually overshoots: a plan above target is accepted
// silently while a plan below target carries a warning. A product is never
// revisited to close a gap left by the cap.
func Allocate(targetCarbs float64, durationMinutes int, products []Product) Plan {
	if targetCarbs <= 0 {
		return Plan{Items: []Item{}, TargetCarbs: targetCarbs, Error: errTargetNotPositive}
	}
	if len(products) == 0 {
		return Plan{Items: []Item{}, TargetCarbs: targetCarbs, Error: errNoProducts}
	}

	sorted := make([]Product, 0, len(products))
	for _, p := range products {
		// zero or negative servings can't contribute and would divide by zero
		if p.CarbsPerServing > 0 {
			sorted = append(sorted, p)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CarbsPerServing > sorted[j].CarbsPerServing
	})

	items := make([]Item, 0, len(sorted))
	remaining := targetCarbs
	capped := false

	for _, p := range sorted {
		if remaining <= 0 {
			break
		}
		needed := int(math.Ceil(remaining / p.CarbsPerServing))
		quantity := needed
		if quantity > MaxQuantity {
			quantity = MaxQuantity
			capped = true
		}

		item := newItem(p, quantity, durationMinutes)
		items = append(items, item)
		remaining -= item.CarbsTotal
	}

	plan := totals(items, targetCarbs)
	if remaining > 0 {
		if capped {
			plan.Warning = fmt.Sprintf("Max quantity reached (%s/%sg). Add more products to skafferi.",
				grams(plan.TotalCarbs), grams(targetCarbs))
		} else {
			plan.Warning = fmt.Sprintf("Insufficient products (%s/%sg). Add more products to skafferi.",
				grams(plan.TotalCarbs), grams(targetCarbs))
		}
	}
	return plan
}

// GenerateTiming spreads quantity intakes evenly over the duration, leaving a
// buffer before the end: offsets are round(i * d/(q+1)) for i = 1..q.
func GenerateTiming(durationMinutes, quantity int) []int {
	if quantity <= 0 {
		return []int{}
	}
	interval := float64(durationMinutes) / float64(quantity+1)
	timing := make([]int, quantity)
	for i := 1; i <= quantity; i++ {
		timing[i-1] = int(math.Round(float64(i) * interval))
	}
	return timing
}

// Recalculate re-derives item and plan totals after manual edits. Manual
// quantities are authoritative: selection is not re-run, zero-quantity items
// are dropped and nothing else is reordered. Calling it twice is a no-op.
func Recalculate(items []Item, targetCarbs float64) Plan {
	if targetCarbs <= 0 {
		return Plan{Items: []Item{}, TargetCarbs: targetCarbs, Error: errTargetNotPositive}
	}

	kept := make([]Item, 0, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		it.CarbsTotal = float64(it.Quantity) * it.CarbsPerServing
		kept = append(kept, it)
	}

	plan := totals(kept, targetCarbs)
	if plan.TotalCarbs < targetCarbs {
		plan.Warning = fmt.Sprintf("Plan below target (%s/%sg).", grams(plan.TotalCarbs), grams(targetCarbs))
	}
	return plan
}

// SetQuantity returns a copy of item with a new quantity, clamped to
// 0..MaxQuantity, and timing regenerated so len(timing) == quantity.
func SetQuantity(item Item, quantity, durationMinutes int) Item {
	if quantity < 0 {
		quantity = 0
	}
	if quantity > MaxQuantity {
		quantity = MaxQuantity
	}
	item.Quantity = quantity
	item.TimingMinutes = GenerateTiming(durationMinutes, quantity)
	item.CarbsTotal = float64(quantity) * item.CarbsPerServing
	return item
}

// Reminders flattens every item's timing into intake reminders ordered by offset.
func Reminders(plan Plan) []Reminder {
	out := make([]Reminder, 0)
	for _, it := range plan.Items {
		for _, offset := range it.TimingMinutes {
			out = append(out, Reminder{
				OffsetMinutes:   offset,
				ProductName:     it.ProductName,
				CarbsPerServing: it.CarbsPerServing,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OffsetMinutes < out[j].OffsetMinutes
	})
	return out
}

func newItem(p Product, quantity, durationMinutes int) Item {
	return Item{
		ProductID:       p.ID,
		ProductName:     p.Name,
		Quantity:        quantity,
		CarbsPerServing: p.CarbsPerServing,
		TimingMinutes:   GenerateTiming(durationMinutes, quantity),
		CarbsTotal:      float64(quantity) * p.CarbsPerServing,
	}
}

// totals derives the total and match percentage; the percentage is never
// stored apart from the numbers it comes from.
func totals(items []Item, targetCarbs float64) Plan {
	var total float64
	for _, it := range items {
		total += it.CarbsTotal
	}
	return Plan{
		Items:           items,
		TotalCarbs:      total,
		TargetCarbs:     targetCarbs,
		MatchPercentage: int(math.Round(total / targetCarbs * 100)),
	}
}

func grams(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
