// Package aggregate collapses columns of raw dataset values into single
// numbers. Inputs arrive unfiltered; anything that does not coerce to a
// number is skipped rather than erroring, which is what makes aggregation
// safe to run over freshly imported mixed-quality data.
package aggregate

import (
	"sort"

	"github.com/merchlens-io/merchlens-engine/pkg/fields"
	"github.com/merchlens-io/merchlens-engine/pkg/models"
)

// Apply aggregates values with the given function. Non-numeric values are
// dropped before aggregating; count reports how many survived. Empty
// input (or input with no numeric values) yields 0 for every function,
// including min and max, so chart axes always have a number to anchor on.
func Apply(values []any, kind models.Aggregation) float64 {
	nums := numericOnly(values)

	switch kind {
	case models.AggregationSum:
		return sum(nums)

	case models.AggregationAvg:
		if len(nums) == 0 {
			return 0
		}
		return sum(nums) / float64(len(nums))

	case models.AggregationMin:
		if len(nums) == 0 {
			return 0
		}
		min := nums[0]
		for _, n := range nums[1:] {
			if n < min {
				min = n
			}
		}
		return min

	case models.AggregationMax:
		if len(nums) == 0 {
			return 0
		}
		max := nums[0]
		for _, n := range nums[1:] {
			if n > max {
				max = n
			}
		}
		return max

	case models.AggregationCount:
		return float64(len(nums))

	case models.AggregationMedian:
		return median(nums)

	case models.AggregationMode:
		return mode(nums)

	default:
		return 0
	}
}

func numericOnly(values []any) []float64 {
	nums := make([]float64, 0, len(values))
	for _, v := range values {
		if n, ok := fields.ToNumber(v); ok {
			nums = append(nums, n)
		}
	}
	return nums
}

func sum(nums []float64) float64 {
	var total float64
	for _, n := range nums {
		total += n
	}
	return total
}

// median returns the middle value, or the mean of the two middle values
// for even-length input.
func median(nums []float64) float64 {
	if len(nums) == 0 {
		return 0
	}
	sorted := make([]float64, len(nums))
	copy(sorted, nums)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// mode returns the most frequent value. Ties resolve to the lowest of the
// tied values so repeated runs over the same data agree.
func mode(nums []float64) float64 {
	if len(nums) == 0 {
		return 0
	}
	counts := make(map[float64]int, len(nums))
	for _, n := range nums {
		counts[n]++
	}

	sorted := make([]float64, len(nums))
	copy(sorted, nums)
	sort.Float64s(sorted)

	best := sorted[0]
	bestCount := 0
	for _, n := range sorted {
		if counts[n] > bestCount {
			best = n
			bestCount = counts[n]
		}
	}
	return best
}
