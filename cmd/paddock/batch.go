package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pitlane/paddock/pkg/allocator"
)

// Batch commands
var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Manage deployment batches",
}

var batchCreateCmd = &cobra.Command{
	Use:   "create VENUE PRODUCT COUNT",
	Short: "Create a deployment batch",
	Long: `Create a batch reserving COUNT hostnames of PRODUCT for a venue.
The batch starts out pending; devices draw from it once it is started:

  paddock batch create CORO KXP2 25 --priority 5`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		venue, product := args[0], args[1]
		total, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid count %q", args[2])
		}
		priority, _ := cmd.Flags().GetInt("priority")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		alloc := allocator.New(st)
		id, err := alloc.CreateBatch(venue, product, total, priority)
		if err != nil {
			return fmt.Errorf("failed to create batch: %v", err)
		}
		batch, err := alloc.GetBatch(id)
		if err != nil {
			return err
		}

		fmt.Printf("✓ Batch %d created: %d %s devices for %s (priority %d)\n",
			batch.ID, batch.TotalCount, batch.ProductType, batch.VenueCode, batch.Priority)
		fmt.Printf("  Run 'paddock batch start %d' to begin assignments\n", batch.ID)
		return nil
	},
}

var batchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List deployment batches",
	RunE: func(cmd *cobra.Command, args []string) error {
		venue, _ := cmd.Flags().GetString("venue")
		status, _ := cmd.Flags().GetString("status")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		batches, err := allocator.New(st).ListBatches(venue, status)
		if err != nil {
			return err
		}
		if len(batches) == 0 {
			fmt.Println("No batches found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tVENUE\tPRODUCT\tPROGRESS\tPRIORITY\tSTATUS\tCREATED")
		for _, b := range batches {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d/%d\t%d\t%s\t%s\n",
				b.ID, b.VenueCode, b.ProductType,
				b.TotalCount-b.RemainingCount, b.TotalCount,
				b.Priority, b.Status, b.CreatedAt.Format("2006-01-02 15:04"),
			)
		}
		return w.Flush()
	},
}

var batchStartCmd = &cobra.Command{
	Use:   "start ID",
	Short: "Start a batch so devices can draw hostnames from it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseBatchID(args[0])
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := allocator.New(st).StartBatch(id); err != nil {
			return fmt.Errorf("failed to start batch %d: %v", id, err)
		}

		fmt.Printf("✓ Batch %d started\n", id)
		return nil
	},
}

var batchPauseCmd = &cobra.Command{
	Use:   "pause ID",
	Short: "Pause an active batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseBatchID(args[0])
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := allocator.New(st).PauseBatch(id); err != nil {
			return fmt.Errorf("failed to pause batch %d: %v", id, err)
		}

		fmt.Printf("✓ Batch %d paused\n", id)
		return nil
	},
}

var batchPriorityCmd = &cobra.Command{
	Use:   "priority ID PRIORITY",
	Short: "Change a batch's priority (higher wins ties)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseBatchID(args[0])
		if err != nil {
			return err
		}
		priority, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid priority %q", args[1])
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := allocator.New(st).UpdateBatchPriority(id, priority); err != nil {
			return fmt.Errorf("failed to update batch %d: %v", id, err)
		}

		fmt.Printf("✓ Batch %d priority set to %d\n", id, priority)
		return nil
	},
}

func parseBatchID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid batch id %q", arg)
	}
	return id, nil
}

func init() {
	batchCmd.AddCommand(batchCreateCmd)
	batchCmd.AddCommand(batchListCmd)
	batchCmd.AddCommand(batchStartCmd)
	batchCmd.AddCommand(batchPauseCmd)
	batchCmd.AddCommand(batchPriorityCmd)

	batchCreateCmd.Flags().Int("priority", 0, "Batch priority (higher wins ties)")

	batchListCmd.Flags().String("venue", "", "Filter by venue code")
	batchListCmd.Flags().String("status", "", "Filter by status (pending, active, paused, completed, cancelled)")
}
