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
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/qaqcrunner/config"
	"github.com/cardinalhq/qaqcrunner/internal/engine"
	"github.com/cardinalhq/qaqcrunner/internal/qaqcreport"
)

func init() {
	var (
		input     string
		snapshot  string
		outputDir string
		rulesFile string
		chunkSize int
		workers   int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run QAQC over a vendor extract",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if input != "" {
				cfg.Paths.Input = input
			}
			if snapshot != "" {
				cfg.Paths.Snapshot = snapshot
			}
			if outputDir != "" {
				cfg.Paths.OutputDir = outputDir
			}
			if rulesFile != "" {
				cfg.RulesFile = rulesFile
			}
			if chunkSize > 0 {
				cfg.ChunkSize = chunkSize
			}
			if workers > 0 {
				cfg.Workers = workers
			}
			if cfg.Paths.Input == "" {
				return fmt.Errorf("no input extract given, use --input or QAQCRUNNER_PATHS_INPUT")
			}

			rules, err := loadRules(cfg.RulesFile)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			result, err := engine.New(cfg, rules).Run(ctx)
			if err != nil {
				return fmt.Errorf("run failed: %w", err)
			}

			if err := result.Report.WriteAll(cfg.Paths.OutputDir); err != nil {
				return fmt.Errorf("write reports: %w", err)
			}

			for _, d := range result.Report.Decisions {
				slog.Info("decision",
					slog.String("check", d.Check),
					slog.String("status", string(d.Status)),
					slog.String("detail", d.Detail))
			}
			slog.Info("reports written",
				slog.String("runID", result.RunID),
				slog.String("dir", cfg.Paths.OutputDir),
				slog.String("overall", string(result.Report.Overall)))

			if result.Report.Overall == qaqcreport.StatusFail {
				return fmt.Errorf("qaqc failed, see %s/decision_summary.csv", cfg.Paths.OutputDir)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "latest vendor extract (.csv or .parquet)")
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "baseline snapshot extract for trend and coverage checks")
	cmd.Flags().StringVar(&outputDir, "output", "", "directory for report artifacts")
	cmd.Flags().StringVar(&rulesFile, "rules", "", "rules file (yaml)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "rows per chunk")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel chunk workers")

	rootCmd.AddCommand(cmd)
}

// loadRules reads the rules file when it exists and falls back to the
// built-in contract when the default path is absent.
func loadRules(path string) (*config.Rules, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			slog.Info("rules file not found, using built-in rules", slog.String("path", path))
			return config.DefaultRules(), nil
		}
		return nil, fmt.Errorf("stat rules file %s: %w", path, err)
	}
	return config.LoadRules(path)
}
