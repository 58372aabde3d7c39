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

package qaqcreport

import (
	"sort"
	"strings"

	"github.com/cardinalhq/qaqcrunner/internal/aggregate"
	"github.com/cardinalhq/qaqcrunner/internal/mergecoord"
)

// RollupRow counts SPU verdicts within one group. Counting is associative,
// rolling up partial result sets and merging gives the same counts as
// rolling up the whole.
type RollupRow struct {
	Country  string
	Platform string
	Group    string
	Month    string

	Pass int64
	Warn int64
	Fail int64

	Status Status
}

func rollup(results []SPUResult, groupOf func(SPUResult) string) []RollupRow {
	type rollupKey struct {
		country, platform, group, month string
	}
	counts := make(map[rollupKey]*RollupRow)
	for _, r := range results {
		k := rollupKey{r.Country, r.Platform, groupOf(r), r.Month}
		row, ok := counts[k]
		if !ok {
			row = &RollupRow{Country: k.country, Platform: k.platform, Group: k.group, Month: k.month}
			counts[k] = row
		}
		switch r.Status {
		case StatusFail:
			row.Fail++
		case StatusWarn:
			row.Warn++
		default:
			row.Pass++
		}
	}

	rows := make([]RollupRow, 0, len(counts))
	for _, row := range counts {
		switch {
		case row.Fail > 0:
			row.Status = StatusFail
		case row.Warn > 0:
			row.Status = StatusWarn
		default:
			row.Status = StatusPass
		}
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		if a.Platform != b.Platform {
			return a.Platform < b.Platform
		}
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		return a.Month < b.Month
	})
	return rows
}

// RollupBySeller folds SPU verdicts up to the seller level.
func RollupBySeller(results []SPUResult) []RollupRow {
	return rollup(results, func(r SPUResult) string { return r.SellerID })
}

// RollupByCategory folds SPU verdicts up to the category level.
func RollupByCategory(results []SPUResult) []RollupRow {
	return rollup(results, func(r SPUResult) string { return r.CategoryURL })
}

// RollupByCountryPlatform folds SPU verdicts up to country and platform.
func RollupByCountryPlatform(results []SPUResult) []RollupRow {
	return rollup(results, func(r SPUResult) string { return "" })
}

// CoverageRow compares the distinct seller population per country and
// platform against the baseline snapshot.
type CoverageRow struct {
	Country  string
	Platform string

	LatestSellers   int64
	BaselineSellers int64

	// Ratio is LatestSellers/BaselineSellers, only meaningful when HasRatio
	// is set.
	Ratio    float64
	HasRatio bool

	Status Status
}

func sellersByCountryPlatform(final *mergecoord.Final) map[[2]string]map[string]struct{} {
	out := make(map[[2]string]map[string]struct{})
	if final == nil {
		return out
	}
	for _, key := range final.Keys {
		if strings.HasPrefix(key.MetricName, aggregate.AttrMissingPrefix) {
			continue
		}
		cp := [2]string{key.Country, key.Platform}
		sellers, ok := out[cp]
		if !ok {
			sellers = make(map[string]struct{})
			out[cp] = sellers
		}
		sellers[key.SellerID] = struct{}{}
	}
	return out
}

// CoverageReport checks that each country and platform retains at least
// passRatio of the baseline's distinct sellers. Without a baseline the check
// can only warn.
func CoverageReport(latest, baseline *mergecoord.Final, passRatio float64) []CoverageRow {
	latestSellers := sellersByCountryPlatform(latest)
	baselineSellers := sellersByCountryPlatform(baseline)

	cps := make([][2]string, 0, len(latestSellers)+len(baselineSellers))
	seen := make(map[[2]string]struct{}, len(latestSellers))
	for cp := range latestSellers {
		cps = append(cps, cp)
		seen[cp] = struct{}{}
	}
	for cp := range baselineSellers {
		if _, ok := seen[cp]; !ok {
			cps = append(cps, cp)
		}
	}
	sort.Slice(cps, func(i, j int) bool {
		if cps[i][0] != cps[j][0] {
			return cps[i][0] < cps[j][0]
		}
		return cps[i][1] < cps[j][1]
	})

	rows := make([]CoverageRow, 0, len(cps))
	for _, cp := range cps {
		row := CoverageRow{
			Country:         cp[0],
			Platform:        cp[1],
			LatestSellers:   int64(len(latestSellers[cp])),
			BaselineSellers: int64(len(baselineSellers[cp])),
		}
		switch {
		case baseline == nil || row.BaselineSellers == 0:
			row.Status = StatusWarn
		default:
			row.Ratio = float64(row.LatestSellers) / float64(row.BaselineSellers)
			row.HasRatio = true
			if row.Ratio >= passRatio {
				row.Status = StatusPass
			} else {
				row.Status = StatusFail
			}
		}
		rows = append(rows, row)
	}
	return rows
}
