package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/dipole/internal/adapters/archive"
	"github.com/okian/dipole/internal/config"
)

func newShowCmd() *cobra.Command {
	var archivePath string

	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "List archived runs, or print one run's detail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if archivePath == "" {
				cfg, err := config.Load(ctx)
				if err != nil {
					return err
				}
				archivePath = cfg.ArchivePath
			}
			if archivePath == "" {
				return fmt.Errorf("no archive configured: set --archive or DIPOLE_ARCHIVE_PATH")
			}

			arch, err := archive.Open(ctx, archivePath)
			if err != nil {
				return err
			}
			defer arch.Close()

			if len(args) == 0 {
				runs, err := arch.ListRuns(ctx)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					cmd.Println("no archived runs")
					return nil
				}
				for _, r := range runs {
					cmd.Printf("%s  %-18s %-17s included=%d/%d failed=%v\n",
						r.ID, r.Name, r.State, r.Included, r.NTrials, r.Failed)
				}
				return nil
			}

			rec, err := arch.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			peakV, peakT := peak(rec.Mean, rec.StepMS)
			cmd.Printf("run        %s\n", rec.ID)
			cmd.Printf("network    %s\n", rec.Name)
			cmd.Printf("state      %s\n", rec.State)
			cmd.Printf("trials     %d included of %d, failed %v\n", rec.Included, rec.NTrials, rec.Failed)
			cmd.Printf("samples    %d @ %.3g ms\n", len(rec.Mean), rec.StepMS)
			cmd.Printf("peak       %.4g nAm at %.1f ms\n", peakV, peakT)
			cmd.Printf("ran        %s .. %s\n",
				rec.StartedAt.Format("2006-01-02 15:04:05"), rec.FinishedAt.Format("15:04:05"))
			for _, t := range rec.Trials {
				if t.Status != "success" {
					cmd.Printf("  trial %-3d %-10s %s\n", t.TrialIdx, t.Status, t.Err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&archivePath, "archive", "a", "", "archive database path")
	return cmd
}
