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

package aggregate

import (
	"github.com/cardinalhq/qaqcrunner/internal/rowvalidate"
)

// AttrMissingPrefix prefixes the synthetic metrics that carry attribute
// completeness through the aggregation engine. One metric per configured
// attribute column, value 1 when the attribute is absent on a record.
const AttrMissingPrefix = "attr_missing."

// Partial is one chunk's aggregate. It is pure output: built once from the
// chunk's kept records, then only read.
type Partial struct {
	ChunkSeq int64
	Accs     map[Key]*Accumulator
}

// NewPartial creates an empty partial for the given chunk.
func NewPartial(chunkSeq int64) *Partial {
	return &Partial{
		ChunkSeq: chunkSeq,
		Accs:     make(map[Key]*Accumulator),
	}
}

// FromRecords aggregates a chunk's kept records. For every record the metric
// value lands under the record's own key; attribute completeness is folded in
// as synthetic attr_missing.* metrics on the same dimensions so attribute
// QAQC stays inside the one associative engine.
func FromRecords(chunkSeq int64, records []rowvalidate.Record) *Partial {
	p := NewPartial(chunkSeq)
	for i := range records {
		p.Add(&records[i])
	}
	return p
}

// Add folds one record into the partial.
func (p *Partial) Add(rec *rowvalidate.Record) {
	key := Key{
		Country:     rec.Country,
		Platform:    rec.Platform,
		SellerID:    rec.SellerID,
		CategoryURL: rec.CategoryURL,
		SPUID:       rec.SPUID,
		Month:       rec.Month,
		MetricName:  rec.MetricName,
	}

	acc := p.acc(key)
	acc.Observe(rec.MetricValue)
	if rec.HasMinMax {
		acc.ObserveSpread(rec.MetricMin, rec.MetricMax)
	}

	for attr, val := range rec.Attrs {
		attrKey := key
		attrKey.MetricName = AttrMissingPrefix + attr
		missing := 0.0
		if val == "" {
			missing = 1.0
		}
		p.acc(attrKey).Observe(missing)
	}
}

func (p *Partial) acc(key Key) *Accumulator {
	acc, ok := p.Accs[key]
	if !ok {
		acc = &Accumulator{}
		p.Accs[key] = acc
	}
	return acc
}

// Len returns the number of distinct keys in the partial.
func (p *Partial) Len() int {
	return len(p.Accs)
}
