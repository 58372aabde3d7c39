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

package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func init() {
	var (
		input   string
		output  string
		rows    int
		sellers int
		spus    int
		month   string
		seed    uint64
	)

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Produce a small extract for smoke testing",
		Long:  `With --input, copy the first N rows of a large extract. Without it, generate a synthetic extract with random sellers and SPUs.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			if input != "" {
				return sampleExtract(input, output, rows)
			}
			return generateExtract(output, rows, sellers, spus, month, seed)
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "extract to sample; empty generates synthetic data")
	cmd.Flags().StringVar(&output, "output", "sample.csv", "where to write the sample")
	cmd.Flags().IntVar(&rows, "rows", 10000, "number of rows")
	cmd.Flags().IntVar(&sellers, "sellers", 20, "distinct sellers in synthetic data")
	cmd.Flags().IntVar(&spus, "spus", 200, "distinct SPUs in synthetic data")
	cmd.Flags().StringVar(&month, "month", "2026-07", "month for synthetic data")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "seed for synthetic data, 0 picks one")

	rootCmd.AddCommand(cmd)
}

// sampleExtract copies the header and the first n rows of src into dst.
func sampleExtract(src, dst string, n int) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	writer := csv.NewWriter(out)

	copied := 0
	for copied <= n {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			_ = out.Close()
			return fmt.Errorf("read %s: %w", src, err)
		}
		if err := writer.Write(rec); err != nil {
			_ = out.Close()
			return fmt.Errorf("write %s: %w", dst, err)
		}
		copied++
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	slog.Info("sampled extract", slog.String("input", src), slog.String("output", dst), slog.Int("rows", copied-1))
	return nil
}

var sampleMetrics = []string{"sales_amount", "sales_volume", "conversion_rate"}

// generateExtract writes a synthetic extract with n metric rows spread over
// random sellers and SPUs.
func generateExtract(dst string, n, sellers, spus int, month string, seed uint64) error {
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, 0))

	sellerIDs := make([]string, sellers)
	for i := range sellerIDs {
		sellerIDs[i] = uuid.NewString()
	}
	spuIDs := make([]string, spus)
	for i := range spuIDs {
		spuIDs[i] = uuid.NewString()
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	writer := csv.NewWriter(out)

	header := []string{
		"spu_used_id", "seller_used_id", "category_url", "country", "platform",
		"month", "metric_name", "metric_value", "metric_min", "metric_max",
		"spu_name", "spu_url",
	}
	if err := writer.Write(header); err != nil {
		_ = out.Close()
		return err
	}

	for i := 0; i < n; i++ {
		spu := spuIDs[rng.IntN(len(spuIDs))]
		seller := sellerIDs[rng.IntN(len(sellerIDs))]
		metric := sampleMetrics[rng.IntN(len(sampleMetrics))]

		var value, minV, maxV string
		switch metric {
		case "conversion_rate":
			lo := 0.01 + rng.Float64()*0.1
			hi := lo + rng.Float64()*0.3
			value = strconv.FormatFloat((lo+hi)/2, 'g', -1, 64)
			minV = strconv.FormatFloat(lo, 'g', -1, 64)
			maxV = strconv.FormatFloat(hi, 'g', -1, 64)
		case "sales_volume":
			value = strconv.Itoa(1 + rng.IntN(500))
		default:
			value = strconv.FormatFloat(rng.Float64()*10000, 'g', -1, 64)
		}

		rec := []string{
			spu, seller, "https://example.com/cat/" + strconv.Itoa(rng.IntN(10)),
			"US", "amazon", month, metric, value, minV, maxV,
			"widget-" + spu[:8], "https://example.com/spu/" + spu,
		}
		if err := writer.Write(rec); err != nil {
			_ = out.Close()
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	slog.Info("generated extract",
		slog.String("output", dst), slog.Int("rows", n), slog.Uint64("seed", seed))
	return nil
}
