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
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/qaqcrunner/config"
	"github.com/cardinalhq/qaqcrunner/internal/rowvalidate"
)

func testRules() *config.Rules {
	return &config.Rules{
		RequiredColumns:  []string{"spu_used_id", "seller_used_id", "country", "platform", "month", "metric_name", "metric_value"},
		AttributeColumns: []string{"spu_name", "spu_url"},
		Metrics: map[string]rowvalidate.MetricRule{
			"sales_amount":    {},
			"conversion_rate": {Ratio: true, Denominator: true},
		},
		Thresholds: testThresholds(),
	}
}

func TestGenerate_CleanRunPasses(t *testing.T) {
	baseline := buildFinal([]rowvalidate.Record{
		rec("spu-1", "s-1", "sales_amount", "2026-06", 100),
	})
	latest := buildFinal([]rowvalidate.Record{
		rec("spu-1", "s-1", "sales_amount", "2026-07", 110),
	})

	rep := Generate(latest, baseline, testRules())
	assert.Equal(t, StatusPass, rep.Overall)
	require.Len(t, rep.Decisions, 4)
	for _, d := range rep.Decisions {
		assert.Equal(t, StatusPass, d.Status, d.Check)
	}
	assert.NotEmpty(t, rep.SPUs)
	assert.NotEmpty(t, rep.Sellers)
}

func TestGenerate_FailurePropagates(t *testing.T) {
	bad := rec("spu-1", "s-1", "sales_amount", "2026-07", 100)
	bad.Attrs = map[string]string{"spu_name": "", "spu_url": ""}
	latest := buildFinal([]rowvalidate.Record{bad})

	rep := Generate(latest, nil, testRules())
	assert.Equal(t, StatusFail, rep.Overall)

	byCheck := map[string]DecisionRow{}
	for _, d := range rep.Decisions {
		byCheck[d.Check] = d
	}
	assert.Equal(t, StatusFail, byCheck["spu_attributes"].Status)
	// No baseline degrades trend and coverage to warnings.
	assert.Equal(t, StatusWarn, byCheck["metric_trend"].Status)
	assert.Equal(t, StatusWarn, byCheck["seller_coverage"].Status)

	// The attribute failure reaches the seller rollup.
	require.Len(t, rep.Sellers, 1)
	assert.Equal(t, StatusFail, rep.Sellers[0].Status)
}

func TestGenerate_Deterministic(t *testing.T) {
	records := []rowvalidate.Record{
		rec("spu-1", "s-1", "sales_amount", "2026-07", 100),
		rec("spu-2", "s-2", "sales_amount", "2026-07", 50),
		rec("spu-3", "s-1", "sales_volume", "2026-07", 7),
	}
	baseline := buildFinal([]rowvalidate.Record{
		rec("spu-1", "s-1", "sales_amount", "2026-06", 90),
	})

	first := Generate(buildFinal(records), baseline, testRules())
	second := Generate(buildFinal(records), baseline, testRules())
	assert.Equal(t, first, second)
}

func TestReport_WriteAll(t *testing.T) {
	latest := buildFinal([]rowvalidate.Record{
		rec("spu-1", "s-1", "sales_amount", "2026-07", 100),
	})
	rep := Generate(latest, nil, testRules())

	dir := filepath.Join(t.TempDir(), "result")
	require.NoError(t, rep.WriteAll(dir))

	for _, name := range []string{
		"spu_attributes.csv", "metric_same_month.csv", "metric_trend.csv",
		"rollup_seller.csv", "rollup_category.csv", "rollup_country_platform.csv",
		"seller_coverage.csv", "decision_summary.csv",
	} {
		f, err := os.Open(filepath.Join(dir, name))
		require.NoError(t, err, name)
		recs, err := csv.NewReader(f).ReadAll()
		require.NoError(t, f.Close())
		require.NoError(t, err, name)
		assert.GreaterOrEqual(t, len(recs), 1, name)
	}

	f, err := os.Open(filepath.Join(dir, "decision_summary.csv"))
	require.NoError(t, err)
	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, f.Close())
	require.NoError(t, err)
	require.Len(t, recs, 5)
	assert.Equal(t, []string{"check", "status", "detail"}, recs[0])
}
