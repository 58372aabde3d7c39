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

package filereader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/qaqcrunner/internal/pipeline"
	"github.com/cardinalhq/qaqcrunner/internal/pipeline/wkk"
)

type snapshotRow struct {
	SPUUsedID   string  `parquet:"spu_used_id"`
	Month       string  `parquet:"month"`
	MetricName  string  `parquet:"metric_name"`
	MetricValue float64 `parquet:"metric_value"`
}

func writeSnapshot(t *testing.T, rows []snapshotRow) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[snapshotRow](&buf)
	_, err := w.Write(rows)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestParquetReader_Next(t *testing.T) {
	ctx := context.Background()
	data := writeSnapshot(t, []snapshotRow{
		{SPUUsedID: "A", Month: "2025-06", MetricName: "asp", MetricValue: 12.5},
		{SPUUsedID: "B", Month: "2025-06", MetricName: "asp", MetricValue: 8},
	})

	r, err := NewParquetReader(bytes.NewReader(data), int64(len(data)), "snap.parquet",
		[]string{"spu_used_id", "month", "metric_name", "metric_value"}, 10)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	batch, err := r.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, batch.Len())

	row := batch.Get(0)
	assert.Equal(t, "A", row[wkk.RowKeySPUID])
	assert.Equal(t, 12.5, row[wkk.RowKeyMetricValue])
	pipeline.ReturnBatch(batch)

	_, err = r.Next(ctx)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, int64(2), r.TotalRowsReturned())
}

func TestParquetReader_MissingRequiredColumn(t *testing.T) {
	data := writeSnapshot(t, []snapshotRow{
		{SPUUsedID: "A", Month: "2025-06", MetricName: "asp", MetricValue: 1},
	})

	_, err := NewParquetReader(bytes.NewReader(data), int64(len(data)), "snap.parquet",
		[]string{"spu_used_id", "country"}, 10)
	require.Error(t, err)

	var srcErr *SourceReadError
	require.True(t, errors.As(err, &srcErr))
	assert.Equal(t, []string{"country"}, srcErr.Missing)
}
