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
	"fmt"

	"github.com/cardinalhq/qaqcrunner/config"
	"github.com/cardinalhq/qaqcrunner/internal/mergecoord"
)

// DecisionRow summarizes one check across the whole run.
type DecisionRow struct {
	Check  string
	Status Status
	Detail string
}

type statusTally struct {
	pass, warn, fail int64
}

func (t *statusTally) observe(s Status) {
	switch s {
	case StatusFail:
		t.fail++
	case StatusWarn:
		t.warn++
	default:
		t.pass++
	}
}

func (t *statusTally) row(check string) DecisionRow {
	status := StatusPass
	switch {
	case t.fail > 0:
		status = StatusFail
	case t.warn > 0:
		status = StatusWarn
	}
	return DecisionRow{
		Check:  check,
		Status: status,
		Detail: fmt.Sprintf("%d pass, %d warn, %d fail", t.pass, t.warn, t.fail),
	}
}

// Report bundles every artifact derived from one run.
type Report struct {
	Attributes       []AttributeRow
	Metrics          []MetricRow
	Trends           []TrendRow
	SPUs             []SPUResult
	Sellers          []RollupRow
	Categories       []RollupRow
	CountryPlatforms []RollupRow
	Coverage         []CoverageRow
	Decisions        []DecisionRow

	// Overall is the worst status across the decision rows.
	Overall Status
}

// Generate runs every check against the finalized aggregate. A nil baseline
// degrades the trend and coverage checks to warnings rather than failing the
// run.
func Generate(latest, baseline *mergecoord.Final, rules *config.Rules) *Report {
	rep := &Report{
		Attributes: AttributeReport(latest, rules.AttributeColumns),
		Metrics:    SameMonthReport(latest, rules.Metrics, rules.Thresholds),
		Trends:     DiffMonthReport(latest, baseline, rules.Thresholds),
		Coverage:   CoverageReport(latest, baseline, rules.Thresholds.CoveragePassRatio),
	}
	rep.SPUs = CombineSPUResults(rep.Attributes, rep.Metrics, rep.Trends)
	rep.Sellers = RollupBySeller(rep.SPUs)
	rep.Categories = RollupByCategory(rep.SPUs)
	rep.CountryPlatforms = RollupByCountryPlatform(rep.SPUs)

	var attrs, sameMonth, trend, coverage statusTally
	for _, r := range rep.Attributes {
		attrs.observe(r.Status)
	}
	for _, r := range rep.Metrics {
		sameMonth.observe(r.Status)
	}
	for _, r := range rep.Trends {
		trend.observe(r.Status)
	}
	for _, r := range rep.Coverage {
		coverage.observe(r.Status)
	}
	rep.Decisions = []DecisionRow{
		attrs.row("spu_attributes"),
		sameMonth.row("metric_same_month"),
		trend.row("metric_trend"),
		coverage.row("seller_coverage"),
	}

	rep.Overall = StatusPass
	for _, d := range rep.Decisions {
		if d.Status.worse(rep.Overall) {
			rep.Overall = d.Status
		}
	}
	return rep
}
