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
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/qaqcrunner/internal/logctx"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "qaqcrunner",
	Short: "QAQC vendor e-commerce extracts",
	Long:  `Stream huge vendor e-commerce extracts in bounded chunks, aggregate them deterministically, and report PASS/WARN/FAIL quality checks.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM, with a
// JSON logger attached.
func signalContext() (context.Context, context.CancelFunc) {
	ll := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(ll)
	ctx := logctx.WithLogger(context.Background(), ll)
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}
