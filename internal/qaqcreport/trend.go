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

	"github.com/cardinalhq/qaqcrunner/config"
	"github.com/cardinalhq/qaqcrunner/internal/aggregate"
	"github.com/cardinalhq/qaqcrunner/internal/mergecoord"
)

// TrendStatus classifies a metric's month-over-month movement.
type TrendStatus string

const (
	TrendNormal              TrendStatus = "normal"
	TrendAbnormalDrop        TrendStatus = "abnormal-drop"
	TrendAbnormalIncrease    TrendStatus = "abnormal-increase"
	TrendNewInLatest         TrendStatus = "new-in-latest"
	TrendMissingInLatest     TrendStatus = "missing-in-latest"
	TrendNoBaseline          TrendStatus = "no-baseline"
	TrendInsufficientHistory TrendStatus = "insufficient-history"
)

// TrendRow compares one metric of one SPU against the baseline snapshot.
type TrendRow struct {
	Country     string
	Platform    string
	SellerID    string
	CategoryURL string
	SPUID       string
	MetricName  string

	LatestMonth   string
	BaselineMonth string
	Latest        float64
	Baseline      float64

	// Growth is Latest/Baseline, only meaningful when HasGrowth is set.
	Growth    float64
	HasGrowth bool

	Trend  TrendStatus
	Status Status
}

// trendSeries is one side's value for a metric, keyed without the month.
// When a side carries several months only the latest is kept.
type trendSeries struct {
	month string
	sum   float64
}

type trendKey struct {
	country, platform, sellerID, categoryURL, spuID, metric string
}

func collectLatestMonth(final *mergecoord.Final) map[trendKey]trendSeries {
	out := make(map[trendKey]trendSeries)
	if final == nil {
		return out
	}
	for _, key := range final.Keys {
		if strings.HasPrefix(key.MetricName, aggregate.AttrMissingPrefix) {
			continue
		}
		acc := final.Get(key)
		if acc == nil || acc.Count == 0 {
			continue
		}
		tk := trendKey{key.Country, key.Platform, key.SellerID, key.CategoryURL, key.SPUID, key.MetricName}
		if prev, ok := out[tk]; !ok || key.Month > prev.month {
			out[tk] = trendSeries{month: key.Month, sum: acc.Sum()}
		}
	}
	return out
}

// DiffMonthReport compares the latest aggregate against the baseline
// snapshot, metric by metric. A nil baseline marks every row no-baseline.
// Abnormal drops and increases fail, as do metrics present in the baseline
// but absent from the latest extract. Thin or absent history only warns.
func DiffMonthReport(latest, baseline *mergecoord.Final, th config.Thresholds) []TrendRow {
	latestSide := collectLatestMonth(latest)
	baselineSide := collectLatestMonth(baseline)

	keys := make([]trendKey, 0, len(latestSide)+len(baselineSide))
	seen := make(map[trendKey]struct{}, len(latestSide))
	for tk := range latestSide {
		keys = append(keys, tk)
		seen[tk] = struct{}{}
	}
	for tk := range baselineSide {
		if _, ok := seen[tk]; !ok {
			keys = append(keys, tk)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.country != b.country {
			return a.country < b.country
		}
		if a.platform != b.platform {
			return a.platform < b.platform
		}
		if a.spuID != b.spuID {
			return a.spuID < b.spuID
		}
		if a.metric != b.metric {
			return a.metric < b.metric
		}
		if a.sellerID != b.sellerID {
			return a.sellerID < b.sellerID
		}
		return a.categoryURL < b.categoryURL
	})

	rows := make([]TrendRow, 0, len(keys))
	for _, tk := range keys {
		row := TrendRow{
			Country:     tk.country,
			Platform:    tk.platform,
			SellerID:    tk.sellerID,
			CategoryURL: tk.categoryURL,
			SPUID:       tk.spuID,
			MetricName:  tk.metric,
		}
		cur, haveCur := latestSide[tk]
		base, haveBase := baselineSide[tk]
		if haveCur {
			row.LatestMonth = cur.month
			row.Latest = cur.sum
		}
		if haveBase {
			row.BaselineMonth = base.month
			row.Baseline = base.sum
		}

		switch {
		case baseline == nil:
			row.Trend = TrendNoBaseline
			row.Status = StatusWarn
		case !haveCur:
			row.Trend = TrendMissingInLatest
			row.Status = StatusFail
		case !haveBase:
			row.Trend = TrendNewInLatest
			row.Status = StatusWarn
		case base.month >= cur.month || base.sum <= 0:
			// The baseline does not hold a usable earlier month.
			row.Trend = TrendInsufficientHistory
			row.Status = StatusWarn
		default:
			row.Growth = cur.sum / base.sum
			row.HasGrowth = true
			switch {
			case row.Growth < th.DropThreshold:
				row.Trend = TrendAbnormalDrop
				row.Status = StatusFail
			case row.Growth >= th.IncreaseThreshold:
				row.Trend = TrendAbnormalIncrease
				row.Status = StatusFail
			default:
				row.Trend = TrendNormal
				row.Status = StatusPass
			}
		}
		rows = append(rows, row)
	}
	return rows
}
