package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/promptlab/internal/config"
	"github.com/nikhilbhutani/promptlab/internal/models"
	"github.com/nikhilbhutani/promptlab/internal/run"
)

var (
	runsLimit     int
	runsOffset    int
	runsVersionID string
	runsModel     string
)

var runsCmd = &cobra.Command{
	Use:   "runs <prompt-id>",
	Short: "List recorded runs of a prompt, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		promptID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid prompt ID: %w", err)
		}

		f := models.RunFilter{PromptID: &promptID, Model: runsModel, Limit: runsLimit, Offset: runsOffset}
		if runsVersionID != "" {
			id, err := uuid.Parse(runsVersionID)
			if err != nil {
				return fmt.Errorf("invalid version ID: %w", err)
			}
			f.VersionID = &id
		}

		return withPool(cmd.Context(), func(_ *config.Config, db *pgxpool.Pool) error {
			rec := run.NewRecorder(db)
			runs, err := rec.QueryRuns(cmd.Context(), f)
			if err != nil {
				return err
			}
			total, err := rec.CountRuns(cmd.Context(), f)
			if err != nil {
				return err
			}
			if err := printRuns(cmd.OutOrStdout(), runs); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d runs\n", len(runs), total)
			return nil
		})
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", run.DefaultLimit, "page size")
	runsCmd.Flags().IntVar(&runsOffset, "offset", 0, "rows to skip")
	runsCmd.Flags().StringVar(&runsVersionID, "version-id", "", "only runs of this version")
	runsCmd.Flags().StringVar(&runsModel, "model", "", "only runs against this model")
}

func printRuns(w io.Writer, runs []models.PromptRun) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tMODEL\tSUCCESS\tRESPONSE_MS")
	for _, r := range runs {
		latency := "-"
		if r.Metrics != nil && r.Metrics.ResponseTime.Valid {
			latency = fmt.Sprintf("%.0f", r.Metrics.ResponseTime.Float64)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", r.ID, r.CreatedAt.Format("2006-01-02 15:04"), r.Model, r.Success, latency)
	}
	return tw.Flush()
}
