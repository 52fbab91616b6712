package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/promptlab/internal/analytics"
	"github.com/nikhilbhutani/promptlab/internal/api"
	"github.com/nikhilbhutani/promptlab/internal/auth"
	"github.com/nikhilbhutani/promptlab/internal/config"
	"github.com/nikhilbhutani/promptlab/internal/models"
	"github.com/nikhilbhutani/promptlab/internal/run"
)

var (
	metricsPeriod  string
	metricsCompare []string
)

var metricsCmd = &cobra.Command{
	Use:   "metrics <prompt-id>",
	Short: "Print bucketed performance metrics, or compare versions with --compare",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		promptID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid prompt ID: %w", err)
		}
		period, err := models.ParsePeriod(metricsPeriod)
		if err != nil {
			return err
		}
		versionIDs, err := parseUUIDs(metricsCompare)
		if err != nil {
			return err
		}

		return withPool(cmd.Context(), func(cfg *config.Config, db *pgxpool.Pool) error {
			loc, err := cfg.Location()
			if err != nil {
				return fmt.Errorf("invalid METRICS_TIMEZONE: %w", err)
			}
			svc := analytics.NewService(run.NewRecorder(db), api.AnalyticsOptions(cfg.Metrics, loc, nil))

			if len(versionIDs) > 0 {
				stats, err := svc.CompareVersions(cmd.Context(), promptID, versionIDs)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), stats)
			}

			buckets, err := svc.GetPerformanceMetrics(cmd.Context(), promptID, period)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), buckets)
		})
	},
}

var (
	tokenUser  string
	tokenRole  string
	tokenEmail string
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a signed API token using JWT_SECRET",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.Auth.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is not set")
		}
		if _, ok := auth.DefaultRoles[tokenRole]; !ok {
			return fmt.Errorf("unknown role %q", tokenRole)
		}

		userID := uuid.New()
		if tokenUser != "" {
			if userID, err = uuid.Parse(tokenUser); err != nil {
				return fmt.Errorf("invalid user ID: %w", err)
			}
		}

		token, err := auth.IssueToken(cfg.Auth.JWTSecret, models.User{ID: userID, Email: tokenEmail, Role: tokenRole}, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	metricsCmd.Flags().StringVarP(&metricsPeriod, "period", "p", "day", "bucket size: day, week or month")
	metricsCmd.Flags().StringSliceVar(&metricsCompare, "compare", nil, "version IDs to compare side by side")

	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user ID (random when empty)")
	tokenCmd.Flags().StringVar(&tokenRole, "role", auth.RoleEditor, "role claim")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}

func parseUUIDs(in []string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid version ID %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
