package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pitlane/paddock/pkg/allocator"
)

// Venue commands
var venueCmd = &cobra.Command{
	Use:   "venue",
	Short: "Manage venues",
}

var venueCreateCmd = &cobra.Command{
	Use:   "create CODE NAME",
	Short: "Create a new venue",
	Long: `Create a venue identified by a 4-character code, for example:

  paddock venue create CORO "Corona Speedway" --location "Corona, CA"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := allocator.NormalizeVenueCode(args[0])
		if err != nil {
			return err
		}
		name := args[1]
		location, _ := cmd.Flags().GetString("location")
		email, _ := cmd.Flags().GetString("email")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := allocator.New(st).CreateVenue(code, name, location, email); err != nil {
			return fmt.Errorf("failed to create venue: %v", err)
		}

		fmt.Printf("✓ Venue %s (%s) created\n", code, name)
		return nil
	},
}

var venueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List venues with their pool counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		venues, err := allocator.New(st).ListVenues()
		if err != nil {
			return err
		}
		if len(venues) == 0 {
			fmt.Println("No venues found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "CODE\tNAME\tLOCATION\tKXP2 AVAIL\tKXP2 ASSIGNED\tRXP2 AVAIL\tRXP2 ASSIGNED")
		for _, v := range venues {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
				v.Code, v.Name, v.Location,
				v.KXP2Available, v.KXP2Assigned,
				v.RXP2Available, v.RXP2Assigned,
			)
		}
		return w.Flush()
	},
}

var venueStatsCmd = &cobra.Command{
	Use:   "stats CODE",
	Short: "Show pool counts for one venue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := allocator.New(st).VenueStats(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Venue %s\n", stats.VenueCode)
		fmt.Printf("  Total hostnames: %d\n", stats.Total)
		fmt.Printf("  Available: %d\n", stats.Available)
		fmt.Printf("  Assigned: %d\n", stats.Assigned)
		fmt.Printf("  Retired: %d\n", stats.Retired)
		return nil
	},
}

var venueEditCmd = &cobra.Command{
	Use:   "edit CODE",
	Short: "Edit a venue's name, location, or contact email",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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
		venue, err := alloc.GetVenue(args[0])
		if err != nil {
			return err
		}

		// Flags not given keep the stored value
		name, location, email := venue.Name, venue.Location, venue.ContactEmail
		if cmd.Flags().Changed("name") {
			name, _ = cmd.Flags().GetString("name")
		}
		if cmd.Flags().Changed("location") {
			location, _ = cmd.Flags().GetString("location")
		}
		if cmd.Flags().Changed("email") {
			email, _ = cmd.Flags().GetString("email")
		}

		if err := alloc.UpdateVenue(venue.Code, name, location, email); err != nil {
			return fmt.Errorf("failed to update venue: %v", err)
		}

		fmt.Printf("✓ Venue %s updated\n", venue.Code)
		return nil
	},
}

func init() {
	venueCmd.AddCommand(venueCreateCmd)
	venueCmd.AddCommand(venueListCmd)
	venueCmd.AddCommand(venueStatsCmd)
	venueCmd.AddCommand(venueEditCmd)

	venueCreateCmd.Flags().String("location", "", "Venue location")
	venueCreateCmd.Flags().String("email", "", "Contact email")

	venueEditCmd.Flags().String("name", "", "New venue name")
	venueEditCmd.Flags().String("location", "", "New venue location")
	venueEditCmd.Flags().String("email", "", "New contact email")
}
