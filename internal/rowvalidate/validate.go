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

// Package rowvalidate classifies every record of a chunk as kept or skipped
// with a tagged reason. A bad record never aborts the run; a structurally
// malformed chunk is rejected as a unit and the run continues.
package rowvalidate

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/cardinalhq/qaqcrunner/internal/pipeline"
	"github.com/cardinalhq/qaqcrunner/internal/pipeline/wkk"
	"github.com/cardinalhq/qaqcrunner/internal/runobserver"
)

// Reason tags why a record was skipped.
type Reason string

const (
	ReasonMissingColumn    Reason = "missing_column"
	ReasonBadDType         Reason = "bad_dtype"
	ReasonZeroOrNegDenom   Reason = "zero_or_negative_denominator"
	ReasonNaNOrInf         Reason = "nan_or_inf"
	ReasonDegenerateMinMax Reason = "degenerate_min_max"
)

// MetricRule describes the guards a metric needs. Rules come from the
// rules file.
type MetricRule struct {
	// Denominator marks metrics used as ratio denominators downstream;
	// their values must be strictly positive and finite.
	Denominator bool `yaml:"denominator" mapstructure:"denominator"`

	// Ratio marks metrics whose min/max spread feeds a ratio computation;
	// records must carry metric_min/metric_max and the two must differ.
	Ratio bool `yaml:"ratio" mapstructure:"ratio"`
}

// Record is one validated row of the canonical extract.
type Record struct {
	SPUID       string
	SellerID    string
	CategoryURL string
	Country     string
	Platform    string
	Month       string
	MetricName  string
	MetricValue float64

	// Min/max spread, present only for ratio metrics.
	MetricMin float64
	MetricMax float64
	HasMinMax bool

	// Attribute columns used by attribute QAQC; empty string means absent.
	Attrs map[string]string
}

// StructuralChunkError indicates a chunk whose column set is wrong as a
// whole. The chunk is skipped and counted; the run continues.
type StructuralChunkError struct {
	ChunkSeq int64
	Rows     int
}

func (e *StructuralChunkError) Error() string {
	return fmt.Sprintf("chunk %d: structurally malformed (%d rows, required column set absent)", e.ChunkSeq, e.Rows)
}

var monthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// Validator applies the per-record checks. It is stateless and safe for
// concurrent use by chunk workers.
type Validator struct {
	requiredKeys []wkk.RowKey
	rules        map[string]MetricRule
	attrKeys     []wkk.RowKey
	attrNames    []string
}

// New builds a Validator from the required-columns manifest, the per-metric
// rules, and the attribute columns checked by attribute QAQC.
func New(required []string, rules map[string]MetricRule, attrColumns []string) *Validator {
	v := &Validator{
		rules: rules,
	}
	for _, col := range required {
		v.requiredKeys = append(v.requiredKeys, wkk.NewRowKey(col))
	}
	for _, col := range attrColumns {
		v.attrKeys = append(v.attrKeys, wkk.NewRowKey(col))
		v.attrNames = append(v.attrNames, col)
	}
	return v
}

// Result is the outcome of validating one chunk.
type Result struct {
	Kept  []Record
	Delta runobserver.StageCounters
}

// ValidateBatch classifies every row of the batch. Exactly one outcome per
// row: it lands in Kept or increments a skip reason. If the chunk's column
// set is wrong as a whole, a StructuralChunkError is returned and the whole
// chunk counts as skipped.
func (v *Validator) ValidateBatch(batch *pipeline.Batch, chunkSeq int64) (Result, error) {
	res := Result{
		Delta: runobserver.StageCounters{
			RowsRead:    int64(batch.Len()),
			RowsSkipped: make(map[string]int64),
		},
	}

	if batch.Len() > 0 && v.chunkIsMalformed(batch) {
		res.Delta.RowsSkipped[string(ReasonMissingColumn)] = int64(batch.Len())
		return res, &StructuralChunkError{ChunkSeq: chunkSeq, Rows: batch.Len()}
	}

	res.Kept = make([]Record, 0, batch.Len())
	for i := 0; i < batch.Len(); i++ {
		rec, reason := v.validateRow(batch.Get(i))
		if reason != "" {
			res.Delta.RowsSkipped[string(reason)]++
			continue
		}
		res.Delta.RowsKept++
		res.Kept = append(res.Kept, rec)
	}
	return res, nil
}

// chunkIsMalformed reports whether every row in the chunk is missing at
// least one required column. That only happens when the chunk came from a
// source with the wrong column set entirely, so the chunk is rejected as a
// unit rather than skip-tagging each row.
func (v *Validator) chunkIsMalformed(batch *pipeline.Batch) bool {
	if len(v.requiredKeys) == 0 {
		return false
	}
	for i := 0; i < batch.Len(); i++ {
		row := batch.Get(i)
		complete := true
		for _, key := range v.requiredKeys {
			if _, ok := row[key]; !ok {
				complete = false
				break
			}
		}
		if complete {
			return false
		}
	}
	return true
}

// validateRow applies the checks in a fixed order so the same record always
// gets the same outcome. The first failed check wins.
func (v *Validator) validateRow(row pipeline.Row) (Record, Reason) {
	for _, key := range v.requiredKeys {
		val, ok := row[key]
		if !ok {
			return Record{}, ReasonMissingColumn
		}
		if s, isStr := val.(string); isStr && strings.TrimSpace(s) == "" {
			return Record{}, ReasonMissingColumn
		}
	}

	rec := Record{
		SPUID:       stringField(row, wkk.RowKeySPUID),
		SellerID:    stringField(row, wkk.RowKeySellerID),
		CategoryURL: stringField(row, wkk.RowKeyCategoryURL),
		Country:     stringField(row, wkk.RowKeyCountry),
		Platform:    stringField(row, wkk.RowKeyPlatform),
		Month:       stringField(row, wkk.RowKeyMonth),
		MetricName:  stringField(row, wkk.RowKeyMetricName),
	}

	if !monthPattern.MatchString(rec.Month) {
		return Record{}, ReasonBadDType
	}

	value, ok := numericField(row, wkk.RowKeyMetricValue)
	if !ok {
		return Record{}, ReasonBadDType
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Record{}, ReasonNaNOrInf
	}
	rec.MetricValue = value

	rule := v.rules[rec.MetricName]

	if rule.Denominator && value <= 0 {
		return Record{}, ReasonZeroOrNegDenom
	}

	if rule.Ratio {
		minV, minOK := numericField(row, wkk.RowKeyMetricMin)
		maxV, maxOK := numericField(row, wkk.RowKeyMetricMax)
		if !minOK || !maxOK {
			return Record{}, ReasonMissingColumn
		}
		if math.IsNaN(minV) || math.IsInf(minV, 0) || math.IsNaN(maxV) || math.IsInf(maxV, 0) {
			return Record{}, ReasonNaNOrInf
		}
		if rule.Denominator && minV <= 0 {
			return Record{}, ReasonZeroOrNegDenom
		}
		if minV == maxV {
			return Record{}, ReasonDegenerateMinMax
		}
		rec.MetricMin = minV
		rec.MetricMax = maxV
		rec.HasMinMax = true
	}

	if len(v.attrKeys) > 0 {
		rec.Attrs = make(map[string]string, len(v.attrKeys))
		for i, key := range v.attrKeys {
			rec.Attrs[v.attrNames[i]] = stringField(row, key)
		}
	}

	return rec, ""
}

func stringField(row pipeline.Row, key wkk.RowKey) string {
	val, ok := row[key]
	if !ok {
		return ""
	}
	switch s := val.(type) {
	case string:
		return strings.TrimSpace(s)
	case int64:
		return fmt.Sprintf("%d", s)
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", s), "0"), ".")
	default:
		return fmt.Sprintf("%v", s)
	}
}

func numericField(row pipeline.Row, key wkk.RowKey) (float64, bool) {
	val, ok := row[key]
	if !ok {
		return 0, false
	}
	switch n := val.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
