package cmd

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/trinetra-vision/trinetra/common/camera"
)

var camerasAllowlist string

var camerasCmd = &cobra.Command{
	Use:   "cameras",
	Short: "Camera configuration commands",
}

var camerasValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a cameras.yaml file",
	Long: `Parse and validate a camera configuration file: unique IDs, known
camera types, RTSP URLs, and priority tiers. With --allowlist, RTSP
hosts must also be literal IPs inside the given CIDR ranges.

Examples:
  trinetra cameras validate configs/cameras.yaml
  trinetra cameras validate --allowlist 10.20.0.0/16,10.21.0.0/16 configs/cameras.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "configs/cameras.yaml"
		if len(args) > 0 {
			path = args[0]
		}

		cams, err := camera.Load(path)
		if err != nil {
			return err
		}

		var cidrs []string
		if camerasAllowlist != "" {
			cidrs = strings.Split(camerasAllowlist, ",")
		}
		allowlist, err := camera.ParseAllowlist(cidrs)
		if err != nil {
			return err
		}
		for _, cam := range cams {
			if err := allowlist.Validate(cam.RTSPURL); err != nil {
				return fmt.Errorf("camera %s: %w", cam.ID, err)
			}
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tFPS\tPRIORITY\tHOST")
		for _, cam := range cams {
			host := cam.RTSPURL
			if u, err := url.Parse(cam.RTSPURL); err == nil {
				host = u.Host
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
				cam.ID, cam.Type, cam.TargetFPS, cam.Priority, host)
		}
		w.Flush()

		fmt.Printf("\n%d cameras OK\n", len(cams))
		return nil
	},
}

func init() {
	camerasValidateCmd.Flags().StringVar(&camerasAllowlist, "allowlist", "",
		"comma-separated CIDR ranges RTSP hosts must fall in")

	camerasCmd.AddCommand(camerasValidateCmd)
	rootCmd.AddCommand(camerasCmd)
}
