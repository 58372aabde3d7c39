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

// Package qaqcreport derives PASS/WARN/FAIL reports from a finalized
// aggregate. Every report is a pure function of the final aggregate and the
// configured thresholds, so the same inputs always produce the same rows in
// the same order.
package qaqcreport

import (
	"sort"
	"strings"

	"github.com/cardinalhq/qaqcrunner/config"
	"github.com/cardinalhq/qaqcrunner/internal/aggregate"
	"github.com/cardinalhq/qaqcrunner/internal/mergecoord"
	"github.com/cardinalhq/qaqcrunner/internal/rowvalidate"
)

// Status is the outcome of a check.
type Status string

const (
	StatusPass Status = "PASS"
	StatusWarn Status = "WARN"
	StatusFail Status = "FAIL"
)

// worse reports whether a is a worse outcome than b.
func (a Status) worse(b Status) bool {
	rank := map[Status]int{StatusPass: 0, StatusWarn: 1, StatusFail: 2}
	return rank[a] > rank[b]
}

// AttributeRow is the attribute completeness result for one SPU and month.
type AttributeRow struct {
	Country     string
	Platform    string
	SellerID    string
	CategoryURL string
	SPUID       string
	Month       string

	// MissingAttrs lists attribute columns seen empty for this SPU.
	MissingAttrs []string
	Status       Status
}

// AttributeReport checks SPU attribute completeness. An SPU whose attribute
// column was empty on any contributing row fails. One row per SPU and month,
// sorted on country, platform, SPU, month.
func AttributeReport(final *mergecoord.Final, attrColumns []string) []AttributeRow {
	if len(attrColumns) == 0 {
		return nil
	}

	type attrGroup struct {
		country, platform, sellerID, categoryURL, spuID, month string
	}
	groups := make(map[attrGroup]*AttributeRow)

	for _, key := range final.Keys {
		col, ok := strings.CutPrefix(key.MetricName, aggregate.AttrMissingPrefix)
		if !ok {
			continue
		}
		g := attrGroup{key.Country, key.Platform, key.SellerID, key.CategoryURL, key.SPUID, key.Month}
		row, ok := groups[g]
		if !ok {
			row = &AttributeRow{
				Country:     key.Country,
				Platform:    key.Platform,
				SellerID:    key.SellerID,
				CategoryURL: key.CategoryURL,
				SPUID:       key.SPUID,
				Month:       key.Month,
			}
			groups[g] = row
		}
		acc := final.Get(key)
		if acc != nil && acc.Sum() > 0 {
			row.MissingAttrs = append(row.MissingAttrs, col)
		}
	}

	rows := make([]AttributeRow, 0, len(groups))
	for _, row := range groups {
		sort.Strings(row.MissingAttrs)
		if len(row.MissingAttrs) > 0 {
			row.Status = StatusFail
		} else {
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
		if a.SPUID != b.SPUID {
			return a.SPUID < b.SPUID
		}
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		if a.SellerID != b.SellerID {
			return a.SellerID < b.SellerID
		}
		return a.CategoryURL < b.CategoryURL
	})
	return rows
}

// MetricRow is the same-month result for one metric of one SPU.
type MetricRow struct {
	Key aggregate.Key

	Sum   float64
	Mean  float64
	Count int64
	Min   float64
	Max   float64

	// SpreadRatio is Max/Min, only meaningful when HasSpread is set.
	SpreadRatio float64
	HasSpread   bool

	Status Status
	Detail string
}

// SameMonthReport checks each metric within its own month. Ratio metrics are
// bounded by the configured max/min spread; other metrics report their
// statistics and always pass. Attribute completeness metrics are excluded,
// they are covered by AttributeReport.
func SameMonthReport(final *mergecoord.Final, metrics map[string]rowvalidate.MetricRule, th config.Thresholds) []MetricRow {
	var rows []MetricRow
	for _, key := range final.Keys {
		if strings.HasPrefix(key.MetricName, aggregate.AttrMissingPrefix) {
			continue
		}
		acc := final.Get(key)
		if acc == nil || acc.Count == 0 {
			continue
		}
		row := MetricRow{
			Key:    key,
			Sum:    acc.Sum(),
			Mean:   acc.Mean(),
			Count:  acc.Count,
			Min:    acc.Min,
			Max:    acc.Max,
			Status: StatusPass,
		}
		if rule, ok := metrics[key.MetricName]; ok && rule.Ratio {
			if acc.Min > 0 {
				row.SpreadRatio = acc.Max / acc.Min
				row.HasSpread = true
				if row.SpreadRatio >= th.SameMonthSpreadRatio {
					row.Status = StatusFail
					row.Detail = "spread_exceeds_bound"
				}
			} else {
				row.Status = StatusWarn
				row.Detail = "nonpositive_min"
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// SPUResult is the combined verdict for one SPU and month, folding the
// attribute, same-month, and trend checks that touched it.
type SPUResult struct {
	Country     string
	Platform    string
	SellerID    string
	CategoryURL string
	SPUID       string
	Month       string
	Status      Status
}

// CombineSPUResults folds per-check rows into one verdict per SPU and month.
// The worst status among the contributing checks wins.
func CombineSPUResults(attrs []AttributeRow, metrics []MetricRow, trends []TrendRow) []SPUResult {
	type spuKey struct {
		country, platform, sellerID, categoryURL, spuID, month string
	}
	verdicts := make(map[spuKey]Status)

	observe := func(k spuKey, s Status) {
		if prev, ok := verdicts[k]; !ok || s.worse(prev) {
			verdicts[k] = s
		}
	}

	for _, r := range attrs {
		observe(spuKey{r.Country, r.Platform, r.SellerID, r.CategoryURL, r.SPUID, r.Month}, r.Status)
	}
	for _, r := range metrics {
		k := r.Key
		observe(spuKey{k.Country, k.Platform, k.SellerID, k.CategoryURL, k.SPUID, k.Month}, r.Status)
	}
	for _, r := range trends {
		month := r.LatestMonth
		if month == "" {
			month = r.BaselineMonth
		}
		observe(spuKey{r.Country, r.Platform, r.SellerID, r.CategoryURL, r.SPUID, month}, r.Status)
	}

	results := make([]SPUResult, 0, len(verdicts))
	for k, s := range verdicts {
		results = append(results, SPUResult{
			Country:     k.country,
			Platform:    k.platform,
			SellerID:    k.sellerID,
			CategoryURL: k.categoryURL,
			SPUID:       k.spuID,
			Month:       k.month,
			Status:      s,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		if a.Platform != b.Platform {
			return a.Platform < b.Platform
		}
		if a.SPUID != b.SPUID {
			return a.SPUID < b.SPUID
		}
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		if a.SellerID != b.SellerID {
			return a.SellerID < b.SellerID
		}
		return a.CategoryURL < b.CategoryURL
	})
	return results
}
