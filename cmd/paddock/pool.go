package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pitlane/paddock/pkg/allocator"
)

// Pool commands
var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Manage hostname pools",
}

var poolImportCmd = &cobra.Command{
	Use:   "import VENUE ID [ID...]",
	Short: "Import hostname identifiers into a venue's pool",
	Long: `Import identifiers into a venue's hostname pool. Numeric
identifiers are zero-padded to three digits, so 1, 01 and 001 are the
same slot:

  paddock pool import CORO 001 002 003 --product KXP2`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		venue := args[0]
		ids := args[1:]
		product, _ := cmd.Flags().GetString("product")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		result, err := allocator.New(st).BulkImport(venue, product, ids)
		if err != nil {
			return fmt.Errorf("failed to import identifiers: %v", err)
		}

		fmt.Printf("✓ Imported %d identifiers (%d duplicates skipped)\n", result.Imported, result.Duplicates)
		return nil
	},
}

var poolListCmd = &cobra.Command{
	Use:   "list",
	Short: "List hostname pool entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		venue, _ := cmd.Flags().GetString("venue")
		product, _ := cmd.Flags().GetString("product")
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

		entries, err := allocator.New(st).ListPool(venue, product, status)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No pool entries found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "HOSTNAME\tSTATUS\tMAC\tSERIAL\tASSIGNED")
		for _, e := range entries {
			mac, serial, assigned := e.MACAddress, e.SerialNumber, "-"
			if mac == "" {
				mac = "-"
			}
			if serial == "" {
				serial = "-"
			}
			if e.AssignedAt != nil {
				assigned = e.AssignedAt.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Hostname(), e.Status, mac, serial, assigned)
		}
		return w.Flush()
	},
}

var poolReleaseCmd = &cobra.Command{
	Use:   "release HOSTNAME",
	Short: "Return an assigned hostname to the available pool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hostname := args[0]

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := allocator.New(st).Release(hostname); err != nil {
			return fmt.Errorf("failed to release %s: %v", hostname, err)
		}

		fmt.Printf("✓ Hostname %s released\n", hostname)
		return nil
	},
}

var poolRetireCmd = &cobra.Command{
	Use:   "retire HOSTNAME",
	Short: "Permanently remove a hostname from circulation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hostname := args[0]

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := allocator.New(st).Retire(hostname); err != nil {
			return fmt.Errorf("failed to retire %s: %v", hostname, err)
		}

		fmt.Printf("✓ Hostname %s retired\n", hostname)
		return nil
	},
}

func init() {
	poolCmd.AddCommand(poolImportCmd)
	poolCmd.AddCommand(poolListCmd)
	poolCmd.AddCommand(poolReleaseCmd)
	poolCmd.AddCommand(poolRetireCmd)

	poolImportCmd.Flags().String("product", "KXP2", "Product type (KXP2 or RXP2)")

	poolListCmd.Flags().String("venue", "", "Filter by venue code")
	poolListCmd.Flags().String("product", "", "Filter by product type")
	poolListCmd.Flags().String("status", "", "Filter by status (available, assigned, retired)")
}
