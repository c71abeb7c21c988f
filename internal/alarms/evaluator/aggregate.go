package evaluator

import (
	"sort"

	alarms "shopfloor-cloud/internal/alarms/domain"
)

func aggregate(method alarms.AggregateMethod, window []observation, axis SlopeAxis) float64 {
	switch method {
	case alarms.AggregateAvg:
		return mean(window)
	case alarms.AggregateMedian:
		return quantile(window, 0.5)
	case alarms.AggregateQ1st:
		return quantile(window, 0.2)
	case alarms.AggregateQ4th:
		return quantile(window, 0.8)
	case alarms.AggregateSlope:
		return slope(window, axis)
	default:
		return 0
	}
}

func mean(window []observation) float64 {
	sum := 0.0
	for _, o := range window {
		sum += o.value
	}
	return sum / float64(len(window))
}

// quantile returns the value at the fractional index q*(n-1) of the
// sorted window, linearly interpolating between neighbours.
func quantile(window []observation, q float64) float64 {
	values := make([]float64, len(window))
	for i, o := range window {
		values[i] = o.value
	}
	sort.Float64s(values)

	idx := q * float64(len(values)-1)
	lo := int(idx)
	if lo >= len(values)-1 {
		return values[len(values)-1]
	}
	frac := idx - float64(lo)
	return values[lo] + frac*(values[lo+1]-values[lo])
}

// slope fits a least-squares line of the values against either elapsed
// seconds since the first observation or the sample index.
func slope(window []observation, axis SlopeAxis) float64 {
	n := float64(len(window))
	if len(window) < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, o := range window {
		x := float64(i)
		if axis == SlopeSeconds {
			x = o.ts.Sub(window[0].ts).Seconds()
		}
		sumX += x
		sumY += o.value
		sumXY += x * o.value
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
