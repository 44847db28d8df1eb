package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/gatekeeper/internal/config"
	"github.com/kozaktomas/gatekeeper/internal/database/postgres"
	"github.com/spf13/cobra"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Print attendance records",
	Long: `Print attendance records from the ledger.
By default prints today's entries; use --recent to list the newest
records across all days, optionally filtered by --filter-name and
--filter-date.`,
	RunE: runAttendance,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)

	attendanceCmd.Flags().Bool("recent", false, "List recent records instead of today's entries")
	attendanceCmd.Flags().Int("limit", 50, "Maximum number of recent records")
	attendanceCmd.Flags().String("filter-name", "", "Only records whose name contains this substring")
	attendanceCmd.Flags().String("filter-date", "", "Only records for this date (YYYY-MM-DD)")
}

func runAttendance(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	ctx := context.Background()
	attendanceRepo := postgres.NewAttendanceRepository(pool)

	if mustGetBool(cmd, "recent") {
		records, err := attendanceRepo.Recent(ctx,
			mustGetInt(cmd, "limit"),
			mustGetString(cmd, "filter-name"),
			mustGetString(cmd, "filter-date"),
		)
		if err != nil {
			return fmt.Errorf("could not read attendance: %w", err)
		}
		if len(records) == 0 {
			fmt.Println("No attendance records found")
			return nil
		}
		for _, rec := range records {
			fmt.Printf("%s %s  %s\n", rec.Date, rec.Time, rec.Name)
		}
		return nil
	}

	date := time.Now().Format("2006-01-02")
	entries, err := attendanceRepo.Entries(ctx, date)
	if err != nil {
		return fmt.Errorf("could not read attendance: %w", err)
	}

	fmt.Printf("Attendance for %s:\n", date)
	if len(entries) == 0 {
		fmt.Println("  (none)")
		return nil
	}
	for _, entry := range entries {
		fmt.Printf("  %s  %s\n", entry.Time, entry.Name)
	}
	return nil
}
