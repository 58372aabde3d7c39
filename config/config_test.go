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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 200_000, cfg.ChunkSize)
	assert.Equal(t, "qaqc_join.ddb", cfg.JoinStore.Path)
	assert.Equal(t, 8, cfg.JoinStore.CommitEvery)
	assert.Equal(t, "result", cfg.Paths.OutputDir)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("QAQCRUNNER_CHUNK_SIZE", "5000")
	t.Setenv("QAQCRUNNER_JOIN_STORE_PATH", "/tmp/other.ddb")
	t.Setenv("QAQCRUNNER_PATHS_OUTPUT_DIR", "out")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.ChunkSize)
	assert.Equal(t, "/tmp/other.ddb", cfg.JoinStore.Path)
	assert.Equal(t, "out", cfg.Paths.OutputDir)
}

func TestLoadRules_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `
required_columns: [spu_used_id, seller_used_id, country, platform, month, metric_name, metric_value]
attribute_columns: [spu_name]
metrics:
  sales_amount: {}
  conversion_rate:
    ratio: true
    denominator: true
thresholds:
  coverage_pass_ratio: 0.9
  drop_threshold: 0.7
  increase_threshold: 3.0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	assert.Len(t, rules.RequiredColumns, 7)
	assert.Equal(t, []string{"spu_name"}, rules.AttributeColumns)
	assert.True(t, rules.Metrics["conversion_rate"].Ratio)
	assert.False(t, rules.Metrics["sales_amount"].Ratio)
	assert.InDelta(t, 0.9, rules.Thresholds.CoveragePassRatio, 1e-12)
	assert.InDelta(t, 3.0, rules.Thresholds.IncreaseThreshold, 1e-12)
	// Unset thresholds keep their defaults.
	assert.InDelta(t, 10.0, rules.Thresholds.SameMonthSpreadRatio, 1e-12)
}

func TestLoadRules_Missing(t *testing.T) {
	_, err := LoadRules("/nonexistent/rules.yaml")
	assert.Error(t, err)
}

func TestRulesValidate(t *testing.T) {
	rules := DefaultRules()
	require.NoError(t, rules.Validate())

	bad := DefaultRules()
	bad.Thresholds.DropThreshold = 1.5
	assert.Error(t, bad.Validate())

	bad = DefaultRules()
	bad.Metrics = nil
	assert.Error(t, bad.Validate())

	bad = DefaultRules()
	bad.Thresholds.CoveragePassRatio = 0
	assert.Error(t, bad.Validate())
}
