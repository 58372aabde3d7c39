// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package aggregate builds associative partial aggregates per chunk. Each
// chunk's partial is an independent, immutable value once built; nothing is
// shared across chunks, which is what makes parallel workers safe.
package aggregate

import "math"

// Accumulator holds {sum, count, min, max} for one key. Summation is
// Neumaier-compensated so merge order does not move the result by more than
// one ulp even across millions of rows.
type Accumulator struct {
	sum   float64
	comp  float64
	Count int64
	Min   float64
	Max   float64
}

// add folds v into the compensated sum.
func (a *Accumulator) add(v float64) {
	t := a.sum + v
	if math.Abs(a.sum) >= math.Abs(v) {
		a.comp += (a.sum - t) + v
	} else {
		a.comp += (v - t) + a.sum
	}
	a.sum = t
}

// Observe folds one value into the accumulator. Observing a value equal to
// the current min or max is a no-op for the extremes, not an error.
func (a *Accumulator) Observe(v float64) {
	a.add(v)
	if a.Count == 0 {
		a.Min = v
		a.Max = v
	} else {
		if v < a.Min {
			a.Min = v
		}
		if v > a.Max {
			a.Max = v
		}
	}
	a.Count++
}

// ObserveSpread widens the extremes without touching sum or count. Used for
// ratio metrics whose records carry a pre-aggregated min/max spread.
func (a *Accumulator) ObserveSpread(minV, maxV float64) {
	if a.Count == 0 {
		return
	}
	if minV < a.Min {
		a.Min = minV
	}
	if maxV > a.Max {
		a.Max = maxV
	}
}

// Merge folds other into a. Merge is associative and commutative: both the
// compensated sum terms and the extremes combine independent of order.
func (a *Accumulator) Merge(other *Accumulator) {
	if other.Count == 0 {
		return
	}
	if a.Count == 0 {
		*a = *other
		return
	}
	a.add(other.sum)
	a.add(other.comp)
	a.Count += other.Count
	if other.Min < a.Min {
		a.Min = other.Min
	}
	if other.Max > a.Max {
		a.Max = other.Max
	}
}

// Sum returns the compensated total.
func (a *Accumulator) Sum() float64 {
	return a.sum + a.comp
}

// Mean returns the average observed value, or 0 for an empty accumulator.
func (a *Accumulator) Mean() float64 {
	if a.Count == 0 {
		return 0
	}
	return a.Sum() / float64(a.Count)
}

// NewAccumulatorFromParts rebuilds an accumulator from its durable fields.
// The join store persists the compensated sum as a single float.
func NewAccumulatorFromParts(sum float64, count int64, minV, maxV float64) *Accumulator {
	return &Accumulator{
		sum:   sum,
		Count: count,
		Min:   minV,
		Max:   maxV,
	}
}
