package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/promptlab/internal/audit"
	"github.com/nikhilbhutani/promptlab/internal/config"
	"github.com/nikhilbhutani/promptlab/internal/models"
	"github.com/nikhilbhutani/promptlab/internal/prompt"
)

var restoreMessage string

var versionsCmd = &cobra.Command{
	Use:   "versions <prompt-id>",
	Short: "List a prompt's versions, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		promptID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid prompt ID: %w", err)
		}
		return withPool(cmd.Context(), func(cfg *config.Config, db *pgxpool.Pool) error {
			svc := prompt.NewService(db, cfg.Versioning.MaxRetries, nil)
			versions, err := svc.ListVersions(cmd.Context(), promptID)
			if err != nil {
				return err
			}
			return printVersions(cmd.OutOrStdout(), versions)
		})
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <prompt-id> <version>",
	Short: "Append a new version copying an earlier one",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		promptID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid prompt ID: %w", err)
		}
		number, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version number: %w", err)
		}

		var msg *string
		if restoreMessage != "" {
			msg = &restoreMessage
		}

		return withPool(cmd.Context(), func(cfg *config.Config, db *pgxpool.Pool) error {
			svc := prompt.NewService(db, cfg.Versioning.MaxRetries, audit.NewService(db))
			v, err := svc.RestoreVersion(cmd.Context(), promptID, number, msg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored version %d as version %d\n", number, v.VersionNumber)
			return nil
		})
	},
}

func init() {
	restoreCmd.Flags().StringVarP(&restoreMessage, "message", "m", "", "commit message (default \"Restored from version N\")")
}

func printVersions(w io.Writer, versions []models.PromptVersion) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tCREATED\tMESSAGE")
	for _, v := range versions {
		msg := ""
		if v.CommitMessage != nil {
			msg = strings.ReplaceAll(*v.CommitMessage, "\n", " ")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", v.VersionNumber, v.CreatedAt.Format("2006-01-02 15:04"), msg)
	}
	return tw.Flush()
}
