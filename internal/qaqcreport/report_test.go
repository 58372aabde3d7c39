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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/qaqcrunner/config"
	"github.com/cardinalhq/qaqcrunner/internal/aggregate"
	"github.com/cardinalhq/qaqcrunner/internal/mergecoord"
	"github.com/cardinalhq/qaqcrunner/internal/rowvalidate"
)

func rec(spu, seller, metric, month string, value float64) rowvalidate.Record {
	return rowvalidate.Record{
		SPUID:       spu,
		SellerID:    seller,
		CategoryURL: "https://example.com/cat",
		Country:     "US",
		Platform:    "amazon",
		Month:       month,
		MetricName:  metric,
		MetricValue: value,
		Attrs:       map[string]string{"spu_name": "widget", "spu_url": "https://example.com/w"},
	}
}

func buildFinal(records []rowvalidate.Record) *mergecoord.Final {
	return mergecoord.Merge([]*aggregate.Partial{aggregate.FromRecords(0, records)})
}

func testThresholds() config.Thresholds {
	return config.Thresholds{
		CoveragePassRatio:    0.95,
		DropThreshold:        0.80,
		IncreaseThreshold:    2.00,
		SameMonthSpreadRatio: 10.0,
	}
}

func TestAttributeReport(t *testing.T) {
	good := rec("spu-1", "s-1", "sales_amount", "2026-07", 100)
	bad := rec("spu-2", "s-1", "sales_amount", "2026-07", 50)
	bad.Attrs = map[string]string{"spu_name": "", "spu_url": "https://example.com/w"}

	final := buildFinal([]rowvalidate.Record{good, bad})
	rows := AttributeReport(final, []string{"spu_name", "spu_url"})
	require.Len(t, rows, 2)

	assert.Equal(t, "spu-1", rows[0].SPUID)
	assert.Equal(t, StatusPass, rows[0].Status)
	assert.Empty(t, rows[0].MissingAttrs)

	assert.Equal(t, "spu-2", rows[1].SPUID)
	assert.Equal(t, StatusFail, rows[1].Status)
	assert.Equal(t, []string{"spu_name"}, rows[1].MissingAttrs)
}

func TestAttributeReport_NoColumns(t *testing.T) {
	final := buildFinal([]rowvalidate.Record{rec("spu-1", "s-1", "sales_amount", "2026-07", 1)})
	assert.Nil(t, AttributeReport(final, nil))
}

func TestSameMonthReport(t *testing.T) {
	ratio := rec("spu-1", "s-1", "conversion_rate", "2026-07", 0.5)
	ratio.MetricMin = 0.01
	ratio.MetricMax = 0.9
	ratio.HasMinMax = true
	plain := rec("spu-1", "s-1", "sales_amount", "2026-07", 100)

	final := buildFinal([]rowvalidate.Record{ratio, plain})
	metrics := map[string]rowvalidate.MetricRule{
		"conversion_rate": {Ratio: true, Denominator: true},
		"sales_amount":    {},
	}
	rows := SameMonthReport(final, metrics, testThresholds())
	require.Len(t, rows, 2)

	byName := map[string]MetricRow{}
	for _, r := range rows {
		byName[r.Key.MetricName] = r
	}

	cr := byName["conversion_rate"]
	require.True(t, cr.HasSpread)
	assert.InDelta(t, 90.0, cr.SpreadRatio, 1e-9)
	assert.Equal(t, StatusFail, cr.Status)
	assert.Equal(t, "spread_exceeds_bound", cr.Detail)

	sa := byName["sales_amount"]
	assert.False(t, sa.HasSpread)
	assert.Equal(t, StatusPass, sa.Status)
	assert.InDelta(t, 100.0, sa.Sum, 1e-9)
}

func TestSameMonthReport_ExcludesAttributeMetrics(t *testing.T) {
	final := buildFinal([]rowvalidate.Record{rec("spu-1", "s-1", "sales_amount", "2026-07", 1)})
	rows := SameMonthReport(final, map[string]rowvalidate.MetricRule{"sales_amount": {}}, testThresholds())
	for _, r := range rows {
		assert.Equal(t, "sales_amount", r.Key.MetricName)
	}
	require.Len(t, rows, 1)
}

func TestDiffMonthReport(t *testing.T) {
	baseline := buildFinal([]rowvalidate.Record{
		rec("spu-normal", "s-1", "sales_amount", "2026-06", 100),
		rec("spu-drop", "s-1", "sales_amount", "2026-06", 100),
		rec("spu-spike", "s-1", "sales_amount", "2026-06", 100),
		rec("spu-gone", "s-1", "sales_amount", "2026-06", 100),
	})
	latest := buildFinal([]rowvalidate.Record{
		rec("spu-normal", "s-1", "sales_amount", "2026-07", 90),
		rec("spu-drop", "s-1", "sales_amount", "2026-07", 50),
		rec("spu-spike", "s-1", "sales_amount", "2026-07", 200),
		rec("spu-new", "s-1", "sales_amount", "2026-07", 10),
	})

	rows := DiffMonthReport(latest, baseline, testThresholds())
	bySPU := map[string]TrendRow{}
	for _, r := range rows {
		bySPU[r.SPUID] = r
	}
	require.Len(t, bySPU, 5)

	assert.Equal(t, TrendNormal, bySPU["spu-normal"].Trend)
	assert.Equal(t, StatusPass, bySPU["spu-normal"].Status)
	assert.InDelta(t, 0.9, bySPU["spu-normal"].Growth, 1e-9)

	assert.Equal(t, TrendAbnormalDrop, bySPU["spu-drop"].Trend)
	assert.Equal(t, StatusFail, bySPU["spu-drop"].Status)

	assert.Equal(t, TrendAbnormalIncrease, bySPU["spu-spike"].Trend)
	assert.Equal(t, StatusFail, bySPU["spu-spike"].Status)

	assert.Equal(t, TrendNewInLatest, bySPU["spu-new"].Trend)
	assert.Equal(t, StatusWarn, bySPU["spu-new"].Status)

	assert.Equal(t, TrendMissingInLatest, bySPU["spu-gone"].Trend)
	assert.Equal(t, StatusFail, bySPU["spu-gone"].Status)
	assert.Equal(t, "2026-06", bySPU["spu-gone"].BaselineMonth)
}

func TestDiffMonthReport_NoBaseline(t *testing.T) {
	latest := buildFinal([]rowvalidate.Record{rec("spu-1", "s-1", "sales_amount", "2026-07", 10)})
	rows := DiffMonthReport(latest, nil, testThresholds())
	require.Len(t, rows, 1)
	assert.Equal(t, TrendNoBaseline, rows[0].Trend)
	assert.Equal(t, StatusWarn, rows[0].Status)
}

func TestDiffMonthReport_InsufficientHistory(t *testing.T) {
	// Baseline carries the same month as the latest extract.
	baseline := buildFinal([]rowvalidate.Record{rec("spu-1", "s-1", "sales_amount", "2026-07", 10)})
	latest := buildFinal([]rowvalidate.Record{rec("spu-1", "s-1", "sales_amount", "2026-07", 12)})
	rows := DiffMonthReport(latest, baseline, testThresholds())
	require.Len(t, rows, 1)
	assert.Equal(t, TrendInsufficientHistory, rows[0].Trend)
	assert.Equal(t, StatusWarn, rows[0].Status)
	assert.False(t, rows[0].HasGrowth)
}

func TestDiffMonthReport_GrowthBoundaries(t *testing.T) {
	baseline := buildFinal([]rowvalidate.Record{
		rec("spu-at-drop", "s-1", "sales_amount", "2026-06", 100),
		rec("spu-at-incr", "s-1", "sales_amount", "2026-06", 100),
	})
	latest := buildFinal([]rowvalidate.Record{
		rec("spu-at-drop", "s-1", "sales_amount", "2026-07", 80),
		rec("spu-at-incr", "s-1", "sales_amount", "2026-07", 200),
	})
	rows := DiffMonthReport(latest, baseline, testThresholds())
	bySPU := map[string]TrendRow{}
	for _, r := range rows {
		bySPU[r.SPUID] = r
	}
	// Exactly at the drop threshold is still normal, exactly at the increase
	// threshold is abnormal.
	assert.Equal(t, TrendNormal, bySPU["spu-at-drop"].Trend)
	assert.Equal(t, TrendAbnormalIncrease, bySPU["spu-at-incr"].Trend)
}

func TestRollups(t *testing.T) {
	results := []SPUResult{
		{Country: "US", Platform: "amazon", SellerID: "s-1", CategoryURL: "c-1", SPUID: "spu-1", Month: "2026-07", Status: StatusPass},
		{Country: "US", Platform: "amazon", SellerID: "s-1", CategoryURL: "c-1", SPUID: "spu-2", Month: "2026-07", Status: StatusFail},
		{Country: "US", Platform: "amazon", SellerID: "s-2", CategoryURL: "c-2", SPUID: "spu-3", Month: "2026-07", Status: StatusWarn},
	}

	sellers := RollupBySeller(results)
	require.Len(t, sellers, 2)
	assert.Equal(t, "s-1", sellers[0].Group)
	assert.Equal(t, int64(1), sellers[0].Pass)
	assert.Equal(t, int64(1), sellers[0].Fail)
	assert.Equal(t, StatusFail, sellers[0].Status)
	assert.Equal(t, "s-2", sellers[1].Group)
	assert.Equal(t, StatusWarn, sellers[1].Status)

	cp := RollupByCountryPlatform(results)
	require.Len(t, cp, 1)
	assert.Equal(t, int64(1), cp[0].Pass)
	assert.Equal(t, int64(1), cp[0].Warn)
	assert.Equal(t, int64(1), cp[0].Fail)
	assert.Equal(t, StatusFail, cp[0].Status)
}

func TestRollup_CountsAreAssociative(t *testing.T) {
	results := make([]SPUResult, 0, 20)
	for i := 0; i < 20; i++ {
		status := StatusPass
		if i%5 == 0 {
			status = StatusFail
		}
		results = append(results, SPUResult{
			Country: "US", Platform: "amazon", SellerID: "s-1",
			SPUID: string(rune('a' + i)), Month: "2026-07", Status: status,
		})
	}

	whole := RollupBySeller(results)
	firstHalf := RollupBySeller(results[:10])
	secondHalf := RollupBySeller(results[10:])
	require.Len(t, whole, 1)
	require.Len(t, firstHalf, 1)
	require.Len(t, secondHalf, 1)
	assert.Equal(t, whole[0].Pass, firstHalf[0].Pass+secondHalf[0].Pass)
	assert.Equal(t, whole[0].Fail, firstHalf[0].Fail+secondHalf[0].Fail)
}

func TestCoverageReport(t *testing.T) {
	baselineRecs := make([]rowvalidate.Record, 0, 20)
	latestRecs := make([]rowvalidate.Record, 0, 19)
	for i := 0; i < 20; i++ {
		seller := "seller-" + string(rune('a'+i))
		baselineRecs = append(baselineRecs, rec("spu-1", seller, "sales_amount", "2026-06", 1))
		if i < 19 {
			latestRecs = append(latestRecs, rec("spu-1", seller, "sales_amount", "2026-07", 1))
		}
	}

	// 19/20 = 0.95 exactly passes.
	rows := CoverageReport(buildFinal(latestRecs), buildFinal(baselineRecs), 0.95)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(19), rows[0].LatestSellers)
	assert.Equal(t, int64(20), rows[0].BaselineSellers)
	assert.Equal(t, StatusPass, rows[0].Status)

	// 18/20 = 0.90 fails.
	rows = CoverageReport(buildFinal(latestRecs[:18]), buildFinal(baselineRecs), 0.95)
	require.Len(t, rows, 1)
	assert.Equal(t, StatusFail, rows[0].Status)
}

func TestCoverageReport_NoBaseline(t *testing.T) {
	latest := buildFinal([]rowvalidate.Record{rec("spu-1", "s-1", "sales_amount", "2026-07", 1)})
	rows := CoverageReport(latest, nil, 0.95)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].HasRatio)
	assert.Equal(t, StatusWarn, rows[0].Status)
}
