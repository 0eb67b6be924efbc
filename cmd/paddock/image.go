package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pitlane/paddock/pkg/images"
	"github.com/pitlane/paddock/pkg/types"
)

// Image commands
var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Manage master images",
}

var imageRegisterCmd = &cobra.Command{
	Use:   "register PATH PRODUCT VERSION",
	Short: "Register a master image file",
	Long: `Register an image file so devices deploy it. The file must live in
the configured image directory to be served:

  paddock image register /var/lib/paddock/images/kxp2_master.img KXP2 2.4.1 --activate`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, product, version := args[0], args[1], args[2]
		activate, _ := cmd.Flags().GetBool("activate")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		fmt.Printf("Checksumming %s...\n", path)

		img, err := images.NewLibrary(cfg.ImageDir, st).Register(path, product, version, activate)
		if err != nil {
			return fmt.Errorf("failed to register image: %v", err)
		}

		fmt.Printf("✓ Image %s registered\n", img.Filename)
		fmt.Printf("  Product: %s\n", img.ProductType)
		fmt.Printf("  Version: %s\n", img.Version)
		fmt.Printf("  Size: %.1f MB\n", float64(img.SizeBytes)/(1<<20))
		fmt.Printf("  Checksum: %s\n", img.Checksum)
		if img.IsActive {
			fmt.Printf("  Active for %s deployments\n", img.ProductType)
		}
		return nil
	},
}

var imageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered images",
	RunE: func(cmd *cobra.Command, args []string) error {
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

		list, err := images.NewLibrary(cfg.ImageDir, st).List(types.ProductType(strings.ToUpper(product)))
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No images registered.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "ACTIVE\tFILENAME\tPRODUCT\tVERSION\tSIZE\tUPLOADED")
		for _, img := range list {
			active := ""
			if img.IsActive {
				active = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.1f MB\t%s\n",
				active, img.Filename, img.ProductType, img.Version,
				float64(img.SizeBytes)/(1<<20),
				img.UploadedAt.Format("2006-01-02 15:04"),
			)
		}
		return w.Flush()
	},
}

var imageActivateCmd = &cobra.Command{
	Use:   "activate FILENAME",
	Short: "Make a registered image the active one for its product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filename := args[0]

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := images.NewLibrary(cfg.ImageDir, st).Activate(filename); err != nil {
			return fmt.Errorf("failed to activate %s: %v", filename, err)
		}

		fmt.Printf("✓ Image %s is now active\n", filename)
		return nil
	},
}

func init() {
	imageCmd.AddCommand(imageRegisterCmd)
	imageCmd.AddCommand(imageListCmd)
	imageCmd.AddCommand(imageActivateCmd)

	imageRegisterCmd.Flags().Bool("activate", false, "Activate the image after registering")

	imageListCmd.Flags().String("product", "", "Filter by product type")
}
