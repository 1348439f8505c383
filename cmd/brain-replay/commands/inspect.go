package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/elliottower/brain-inspired-replay/internal/infrastructure/checkpoint"
)

// Flag variables for inspect commands
var (
	inspectDB    string
	inspectRun   string
	inspectLimit int
)

// InspectCmd is the parent command for checkpoint-store inspection.
var InspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Inspect a checkpoint database",
	Long: `Commands for inspecting the runs, checkpoints, and metrics stored
in a run's SQLite database.`,
}

func openStore() (*checkpoint.Store, error) {
	if inspectDB == "" {
		return nil, fmt.Errorf("--db is required")
	}
	cfg := checkpoint.DefaultStoreConfig()
	cfg.DBPath = inspectDB
	store, err := checkpoint.NewStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

var inspectRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List the runs in the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.ListRuns()
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs found")
			return nil
		}
		for _, id := range runs {
			fmt.Println(id)
		}
		return nil
	},
}

var inspectCheckpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "List a run's checkpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		if inspectRun == "" {
			return fmt.Errorf("--run is required")
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		checkpoints, err := store.ListCheckpoints(inspectRun)
		if err != nil {
			return err
		}
		if len(checkpoints) == 0 {
			fmt.Println("No checkpoints found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTASK\tITERATION\tPARAMS\tCREATED")
		for _, cp := range checkpoints {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n",
				cp.ID, cp.Task, cp.Iteration, len(cp.Parameters),
				cp.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		w.Flush()
		return nil
	},
}

var inspectMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "List a run's recorded loss metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		if inspectRun == "" {
			return fmt.Errorf("--run is required")
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		rows, err := store.Metrics(inspectRun)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Println("No metrics found")
			return nil
		}
		if inspectLimit > 0 && len(rows) > inspectLimit {
			rows = rows[len(rows)-inspectLimit:]
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TASK\tITERATION\tNAME\tVALUE")
		for _, row := range rows {
			fmt.Fprintf(w, "%d\t%d\t%s\t%.6f\n", row.Task, row.Iteration, row.Name, row.Value)
		}
		w.Flush()
		return nil
	},
}

func init() {
	InspectCmd.PersistentFlags().StringVar(&inspectDB, "db", "", "Checkpoint database path")
	InspectCmd.PersistentFlags().StringVarP(&inspectRun, "run", "r", "", "Run ID")
	inspectMetricsCmd.Flags().IntVar(&inspectLimit, "limit", 100, "Show at most the last N rows (0 shows all)")

	InspectCmd.AddCommand(inspectRunsCmd)
	InspectCmd.AddCommand(inspectCheckpointsCmd)
	InspectCmd.AddCommand(inspectMetricsCmd)
}
