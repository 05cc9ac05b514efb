package commands

import (
	"context"
	"fmt"

	"github.com/alanblu/radxa-flash-tool/internal/config"
	"github.com/alanblu/radxa-flash-tool/pkg/errors"
	"github.com/alanblu/radxa-flash-tool/pkg/rockusb"
	"github.com/alanblu/radxa-flash-tool/pkg/transcript"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List connected rockusb devices without flashing",
	RunE:  runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config invalid")
	}

	tr, err := transcript.Spawn(cfg.UpgradeCommand)
	if err != nil {
		return errors.Wrap(err, "failed to start flashing tool")
	}

	session := rockusb.NewSession(tr, rockusb.Config{
		UploadTimeout:     cfg.UploadTimeout,
		WriteCheckTimeout: cfg.WriteCheckTimeout,
	}, rockusb.NopReporter{})
	defer session.Close()

	devices, err := session.Discover(ctx)
	if err != nil {
		return errors.Wrap(err, "device discovery failed")
	}

	if len(devices) == 0 {
		fmt.Printf("No rockusb devices found. Put the board in maskrom mode first: %s\n",
			rockusb.MaskromHint)
		return nil
	}

	fmt.Printf("%-8s %-8s %-8s %-12s\n", "DEVNO", "VID", "PID", "LOCATION")
	fmt.Println("------------------------------------")
	for _, dev := range devices {
		fmt.Printf("%-8d 0x%-6s 0x%-6s %-12d\n",
			dev.DevNo, dev.VendorID, dev.ProductID, dev.LocationID)
	}

	return nil
}
