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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeCSV(w io.Writer, header []string, records [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, rec := range records {
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteAttributeCSV writes the SPU attribute report.
func WriteAttributeCSV(w io.Writer, rows []AttributeRow) error {
	header := []string{"country", "platform", "seller_used_id", "category_url", "spu_used_id", "month", "missing_attrs", "status"}
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, []string{
			r.Country, r.Platform, r.SellerID, r.CategoryURL, r.SPUID, r.Month,
			strings.Join(r.MissingAttrs, ";"), string(r.Status),
		})
	}
	return writeCSV(w, header, records)
}

// WriteMetricCSV writes the same-month metric report.
func WriteMetricCSV(w io.Writer, rows []MetricRow) error {
	header := []string{
		"country", "platform", "seller_used_id", "category_url", "spu_used_id", "month", "metric_name",
		"sum", "mean", "count", "min", "max", "spread_ratio", "status", "detail",
	}
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		spread := ""
		if r.HasSpread {
			spread = formatFloat(r.SpreadRatio)
		}
		k := r.Key
		records = append(records, []string{
			k.Country, k.Platform, k.SellerID, k.CategoryURL, k.SPUID, k.Month, k.MetricName,
			formatFloat(r.Sum), formatFloat(r.Mean), strconv.FormatInt(r.Count, 10),
			formatFloat(r.Min), formatFloat(r.Max), spread, string(r.Status), r.Detail,
		})
	}
	return writeCSV(w, header, records)
}

// WriteTrendCSV writes the month-over-month trend report.
func WriteTrendCSV(w io.Writer, rows []TrendRow) error {
	header := []string{
		"country", "platform", "seller_used_id", "category_url", "spu_used_id", "metric_name",
		"latest_month", "baseline_month", "latest", "baseline", "growth", "trend", "status",
	}
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		growth := ""
		if r.HasGrowth {
			growth = formatFloat(r.Growth)
		}
		records = append(records, []string{
			r.Country, r.Platform, r.SellerID, r.CategoryURL, r.SPUID, r.MetricName,
			r.LatestMonth, r.BaselineMonth, formatFloat(r.Latest), formatFloat(r.Baseline),
			growth, string(r.Trend), string(r.Status),
		})
	}
	return writeCSV(w, header, records)
}

// WriteRollupCSV writes a rollup report. The group column is named by the
// caller since the same shape serves seller, category, and country rollups.
func WriteRollupCSV(w io.Writer, groupColumn string, rows []RollupRow) error {
	header := []string{"country", "platform", groupColumn, "month", "pass", "warn", "fail", "status"}
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, []string{
			r.Country, r.Platform, r.Group, r.Month,
			strconv.FormatInt(r.Pass, 10), strconv.FormatInt(r.Warn, 10), strconv.FormatInt(r.Fail, 10),
			string(r.Status),
		})
	}
	return writeCSV(w, header, records)
}

// WriteCoverageCSV writes the seller coverage report.
func WriteCoverageCSV(w io.Writer, rows []CoverageRow) error {
	header := []string{"country", "platform", "latest_sellers", "baseline_sellers", "ratio", "status"}
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		ratio := ""
		if r.HasRatio {
			ratio = formatFloat(r.Ratio)
		}
		records = append(records, []string{
			r.Country, r.Platform,
			strconv.FormatInt(r.LatestSellers, 10), strconv.FormatInt(r.BaselineSellers, 10),
			ratio, string(r.Status),
		})
	}
	return writeCSV(w, header, records)
}

// WriteDecisionCSV writes the decision summary.
func WriteDecisionCSV(w io.Writer, rows []DecisionRow) error {
	header := []string{"check", "status", "detail"}
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, []string{r.Check, string(r.Status), r.Detail})
	}
	return writeCSV(w, header, records)
}

// WriteAll writes every report artifact into dir, creating it if needed.
func (r *Report) WriteAll(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	artifacts := []struct {
		name  string
		write func(io.Writer) error
	}{
		{"spu_attributes.csv", func(w io.Writer) error { return WriteAttributeCSV(w, r.Attributes) }},
		{"metric_same_month.csv", func(w io.Writer) error { return WriteMetricCSV(w, r.Metrics) }},
		{"metric_trend.csv", func(w io.Writer) error { return WriteTrendCSV(w, r.Trends) }},
		{"rollup_seller.csv", func(w io.Writer) error { return WriteRollupCSV(w, "seller_used_id", r.Sellers) }},
		{"rollup_category.csv", func(w io.Writer) error { return WriteRollupCSV(w, "category_url", r.Categories) }},
		{"rollup_country_platform.csv", func(w io.Writer) error { return WriteRollupCSV(w, "group", r.CountryPlatforms) }},
		{"seller_coverage.csv", func(w io.Writer) error { return WriteCoverageCSV(w, r.Coverage) }},
		{"decision_summary.csv", func(w io.Writer) error { return WriteDecisionCSV(w, r.Decisions) }},
	}
	for _, a := range artifacts {
		f, err := os.Create(filepath.Join(dir, a.name))
		if err != nil {
			return fmt.Errorf("create %s: %w", a.name, err)
		}
		if err := a.write(f); err != nil {
			_ = f.Close()
			return fmt.Errorf("write %s: %w", a.name, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close %s: %w", a.name, err)
		}
	}
	return nil
}
