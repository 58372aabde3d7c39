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
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cardinalhq/qaqcrunner/internal/rowvalidate"
)

// Rules describes the dataset contract and check thresholds for a run.
type Rules struct {
	// RequiredColumns must be present in every extract. A source whose header
	// lacks any of them is rejected before the first chunk.
	RequiredColumns []string `yaml:"required_columns"`

	// AttributeColumns are SPU attribute columns whose completeness is
	// checked (empty values fail the SPU).
	AttributeColumns []string `yaml:"attribute_columns"`

	// Metrics maps metric names to their validation rules.
	Metrics map[string]rowvalidate.MetricRule `yaml:"metrics"`

	Thresholds Thresholds `yaml:"thresholds"`
}

// Thresholds holds the decision boundaries applied by the report stage.
type Thresholds struct {
	// CoveragePassRatio is the minimum latest/baseline seller coverage for a
	// country and platform to pass, typically 0.95.
	CoveragePassRatio float64 `yaml:"coverage_pass_ratio"`

	// DropThreshold marks a month-over-month growth below it as an abnormal
	// drop, typically 0.80.
	DropThreshold float64 `yaml:"drop_threshold"`

	// IncreaseThreshold marks a month-over-month growth at or above it as an
	// abnormal increase, typically 2.00.
	IncreaseThreshold float64 `yaml:"increase_threshold"`

	// SameMonthSpreadRatio bounds max/min within a single month for ratio
	// metrics. A spread at or above it fails the metric.
	SameMonthSpreadRatio float64 `yaml:"same_month_spread_ratio"`
}

// DefaultRules returns the built-in vendor extract contract.
func DefaultRules() *Rules {
	return &Rules{
		RequiredColumns: []string{
			"spu_used_id", "seller_used_id", "category_url",
			"country", "platform", "month",
			"metric_name", "metric_value",
		},
		AttributeColumns: []string{"spu_name", "spu_url"},
		Metrics: map[string]rowvalidate.MetricRule{
			"sales_amount":    {},
			"sales_volume":    {},
			"conversion_rate": {Ratio: true, Denominator: true},
		},
		Thresholds: Thresholds{
			CoveragePassRatio:    0.95,
			DropThreshold:        0.80,
			IncreaseThreshold:    2.00,
			SameMonthSpreadRatio: 10.0,
		},
	}
}

// LoadRules reads a rules file, filling unset thresholds from the defaults.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file %s: %w", path, err)
	}
	rules := DefaultRules()
	if err := yaml.Unmarshal(data, rules); err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("rules file %s: %w", path, err)
	}
	return rules, nil
}

// Validate checks the rules for internal consistency.
func (r *Rules) Validate() error {
	if len(r.RequiredColumns) == 0 {
		return fmt.Errorf("required_columns must not be empty")
	}
	if len(r.Metrics) == 0 {
		return fmt.Errorf("metrics must not be empty")
	}
	t := r.Thresholds
	if t.CoveragePassRatio <= 0 || t.CoveragePassRatio > 1 {
		return fmt.Errorf("coverage_pass_ratio must be in (0, 1], got %v", t.CoveragePassRatio)
	}
	if t.DropThreshold <= 0 || t.DropThreshold >= 1 {
		return fmt.Errorf("drop_threshold must be in (0, 1), got %v", t.DropThreshold)
	}
	if t.IncreaseThreshold <= 1 {
		return fmt.Errorf("increase_threshold must be greater than 1, got %v", t.IncreaseThreshold)
	}
	return nil
}
