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

package mergecoord

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/qaqcrunner/internal/aggregate"
	"github.com/cardinalhq/qaqcrunner/internal/joinstore"
	"github.com/cardinalhq/qaqcrunner/internal/rowvalidate"
)

func record(spu, month string, value float64) rowvalidate.Record {
	return rowvalidate.Record{
		SPUID:       spu,
		SellerID:    "S1",
		CategoryURL: "c1",
		Country:     "PH",
		Platform:    "LAZ",
		Month:       month,
		MetricName:  "asp",
		MetricValue: value,
	}
}

// chunked splits records into chunks of at most size records.
func chunked(records []rowvalidate.Record, size int) []*aggregate.Partial {
	var partials []*aggregate.Partial
	for seq := 0; seq*size < len(records); seq++ {
		end := (seq + 1) * size
		if end > len(records) {
			end = len(records)
		}
		partials = append(partials, aggregate.FromRecords(int64(seq), records[seq*size:end]))
	}
	return partials
}

func tenRecordsTwoKeys() []rowvalidate.Record {
	return []rowvalidate.Record{
		record("A", "2025-07", 1),
		record("B", "2025-07", 10),
		record("A", "2025-07", 2),
		record("B", "2025-07", 20),
		record("A", "2025-07", 3),
		record("B", "2025-07", 30),
		record("A", "2025-07", 4),
		record("B", "2025-07", 40),
		record("A", "2025-07", 5),
		record("B", "2025-07", 50),
	}
}

func TestMerge_ChunkSizeInvariance(t *testing.T) {
	// Scenario A: 10 records across 2 keys. Chunk size 3 (4 chunks) must
	// match a single-chunk run exactly, including serialized order.
	records := tenRecordsTwoKeys()

	small := Merge(chunked(records, 3))
	whole := Merge(chunked(records, 10))

	require.Equal(t, whole.Len(), small.Len())
	require.Equal(t, whole.Keys, small.Keys)

	for _, key := range whole.Keys {
		w, s := whole.Get(key), small.Get(key)
		assert.Equal(t, w.Sum(), s.Sum(), "sum for %v", key)
		assert.Equal(t, w.Count, s.Count)
		assert.Equal(t, w.Min, s.Min)
		assert.Equal(t, w.Max, s.Max)
	}

	// Direct computation over all 10 records.
	keyA := aggregate.Key{
		Country: "PH", Platform: "LAZ", SellerID: "S1", CategoryURL: "c1",
		SPUID: "A", Month: "2025-07", MetricName: "asp",
	}
	accA := whole.Get(keyA)
	require.NotNil(t, accA)
	assert.Equal(t, 15.0, accA.Sum())
	assert.Equal(t, int64(5), accA.Count)
	assert.Equal(t, 1.0, accA.Min)
	assert.Equal(t, 5.0, accA.Max)
}

func TestMerge_ArrivalOrderInvariance(t *testing.T) {
	records := tenRecordsTwoKeys()
	partials := chunked(records, 2)

	baseline := Merge(partials)

	rng := rand.New(rand.NewSource(42))
	for range 10 {
		shuffled := make([]*aggregate.Partial, len(partials))
		copy(shuffled, partials)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		got := Merge(shuffled)
		require.Equal(t, baseline.Keys, got.Keys)
		for _, key := range baseline.Keys {
			assert.Equal(t, baseline.Get(key).Sum(), got.Get(key).Sum())
			assert.Equal(t, baseline.Get(key).Count, got.Get(key).Count)
		}
	}
}

func TestMerge_DisjointHalvesMatchSequential(t *testing.T) {
	// Scenario C: two workers over disjoint halves of 100 records equal
	// one sequential pass.
	var records []rowvalidate.Record
	for i := range 100 {
		spu := "A"
		if i%2 == 1 {
			spu = "B"
		}
		records = append(records, record(spu, "2025-07", float64(i)))
	}

	sequential := Merge([]*aggregate.Partial{aggregate.FromRecords(0, records)})

	workerOne := aggregate.FromRecords(0, records[:50])
	workerTwo := aggregate.FromRecords(1, records[50:])
	parallel := Merge([]*aggregate.Partial{workerTwo, workerOne}) // reversed completion order

	require.Equal(t, sequential.Keys, parallel.Keys)
	for _, key := range sequential.Keys {
		assert.Equal(t, sequential.Get(key).Sum(), parallel.Get(key).Sum())
		assert.Equal(t, sequential.Get(key).Count, parallel.Get(key).Count)
		assert.Equal(t, sequential.Get(key).Min, parallel.Get(key).Min)
		assert.Equal(t, sequential.Get(key).Max, parallel.Get(key).Max)
	}
}

func TestCoordinator_AddEntry(t *testing.T) {
	c := New()

	key := aggregate.Key{
		Country: "PH", Platform: "LAZ", SellerID: "S1", CategoryURL: "c1",
		SPUID: "A", Month: "2025-07", MetricName: "asp",
	}
	require.NoError(t, c.AddEntry(joinstore.Entry{
		ChunkSeq: 0, KeyString: key.String(), Sum: 6, Count: 3, Min: 1, Max: 3,
	}))
	require.NoError(t, c.AddEntry(joinstore.Entry{
		ChunkSeq: 1, KeyString: key.String(), Sum: 4, Count: 1, Min: 4, Max: 4,
	}))

	final := c.Finalize()
	require.Equal(t, 1, final.Len())
	acc := final.Get(key)
	assert.Equal(t, 10.0, acc.Sum())
	assert.Equal(t, int64(4), acc.Count)
	assert.Equal(t, 1.0, acc.Min)
	assert.Equal(t, 4.0, acc.Max)
}

func TestCoordinator_KeyConflictIsFatal(t *testing.T) {
	c := New()
	err := c.AddEntry(joinstore.Entry{KeyString: "not-a-composite-key"})
	require.Error(t, err)

	var conflict *KeyConflictError
	assert.True(t, errors.As(err, &conflict))
}

func TestFinal_CanonicalOrder(t *testing.T) {
	recs := []rowvalidate.Record{
		record("B", "2025-07", 1),
		record("A", "2025-08", 1),
		record("A", "2025-07", 1),
	}
	recs[0].Country = "TH"

	final := Merge([]*aggregate.Partial{aggregate.FromRecords(0, recs)})

	require.Equal(t, 3, final.Len())
	assert.Equal(t, "PH", final.Keys[0].Country)
	assert.Equal(t, "2025-07", final.Keys[0].Month)
	assert.Equal(t, "2025-08", final.Keys[1].Month)
	assert.Equal(t, "TH", final.Keys[2].Country)
}
