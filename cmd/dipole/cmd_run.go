package main

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/dipole/internal/adapters/archive"
	"github.com/okian/dipole/internal/app"
	"github.com/okian/dipole/internal/config"
	"github.com/okian/dipole/internal/netspec"
	"github.com/okian/dipole/pkg/logger"
	"github.com/okian/dipole/pkg/metrics"
)

func newRunCmd() *cobra.Command {
	var (
		networkPath string
		nTrials     int
		poolSize    int
		minRequired int
		outPath     string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run n independent trials and print the averaged dipole",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load(ctx)
			if err != nil {
				return err
			}
			if err := logger.SetLevelString(cfg.LogLevel); err != nil {
				logger.Get().Warn(ctx, "invalid log_level; falling back to info",
					logger.String("log_level", cfg.LogLevel), logger.Error(err))
				_ = logger.SetLevelString("info")
			}

			// Flags take precedence over config for run-shaped knobs.
			if !cmd.Flags().Changed("pool") {
				poolSize = cfg.PoolSize
			}
			if !cmd.Flags().Changed("min-required") {
				minRequired = cfg.MinRequired
			}

			net, err := netspec.Load(networkPath)
			if err != nil {
				return err
			}

			if cfg.MetricsAddr != "" {
				go func() {
					mux := http.NewServeMux()
					mux.Handle("/metrics", metrics.Handler())
					srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logger.Get().Error(ctx, "metrics server failed", logger.Error(err))
					}
				}()
			}

			opts := []app.Option{
				app.WithPoolSize(poolSize),
				app.WithMinRequired(minRequired),
				app.WithQueueCapacity(cfg.QueueSize),
				app.WithTrialTimeout(time.Duration(cfg.TrialTimeoutMS) * time.Millisecond),
				app.WithBarrierTimeout(time.Duration(cfg.BarrierTimeoutMS) * time.Millisecond),
			}
			if cfg.ArchivePath != "" {
				arch, err := archive.Open(ctx, cfg.ArchivePath)
				if err != nil {
					return err
				}
				defer arch.Close()
				opts = append(opts, app.WithArchive(arch))
			}

			session, err := app.New(net, opts...)
			if err != nil {
				return err
			}

			result, err := session.Run(ctx, nTrials)
			if err != nil {
				// Surface the partial picture before failing.
				cmd.PrintErrf("run %s aborted: %d/%d trials succeeded\n",
					session.RunID(), result.Included, nTrials)
				return err
			}

			peakV, peakT := peak(result.Mean.Values, result.Mean.StepMS)
			cmd.Printf("run        %s\n", session.RunID())
			cmd.Printf("network    %s\n", net.Name())
			cmd.Printf("state      %s\n", session.State())
			cmd.Printf("trials     %d included, %d failed %v\n", result.Included, len(result.Failed), result.Failed)
			cmd.Printf("samples    %d @ %.3g ms\n", result.Mean.Len(), result.Mean.StepMS)
			cmd.Printf("peak       %.4g nAm at %.1f ms\n", peakV, peakT)

			if outPath != "" {
				if err := writeCSV(outPath, result.Mean.StepMS, result.Mean.Values, result.Variance.Values); err != nil {
					return fmt.Errorf("writing %s: %w", outPath, err)
				}
				cmd.Printf("wrote      %s\n", outPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&networkPath, "network", "n", "", "network definition file (YAML)")
	cmd.Flags().IntVarP(&nTrials, "trials", "t", 1, "number of independent trials")
	cmd.Flags().IntVarP(&poolSize, "pool", "p", 0, "worker pool size (default from config)")
	cmd.Flags().IntVar(&minRequired, "min-required", 0, "quorum of successful trials (default: all)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the mean series as CSV")
	_ = cmd.MarkFlagRequired("network")
	return cmd
}

// peak returns the sample with the largest magnitude and its time.
func peak(values []float64, stepMS float64) (float64, float64) {
	best, bestIdx := 0.0, 0
	for i, v := range values {
		if abs := max(v, -v); abs > max(best, -best) {
			best, bestIdx = v, i
		}
	}
	return best, float64(bestIdx) * stepMS
}

func writeCSV(path string, stepMS float64, mean, variance []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"time_ms", "mean_nam", "variance"}); err != nil {
		return err
	}
	for i, v := range mean {
		rec := []string{
			strconv.FormatFloat(float64(i)*stepMS, 'g', -1, 64),
			strconv.FormatFloat(v, 'g', -1, 64),
			"0",
		}
		if i < len(variance) {
			rec[2] = strconv.FormatFloat(variance[i], 'g', -1, 64)
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
