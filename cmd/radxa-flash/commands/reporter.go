package commands

import (
	"fmt"
	"log/slog"

	"github.com/alanblu/radxa-flash-tool/pkg/rockusb"
	"github.com/schollz/progressbar/v3"
)

// consoleReporter renders session events for an operator sitting at
// the bench: structured log lines for outcomes, a progress bar for the
// image write, and the maskrom recovery hint for boards that need it.
type consoleReporter struct {
	bar *progressbar.ProgressBar
}

func newConsoleReporter() *consoleReporter {
	return &consoleReporter{}
}

func (c *consoleReporter) DeviceFound(dev rockusb.Device) {
	slog.Info("device_found",
		"dev_no", dev.DevNo,
		"vid", dev.VendorID,
		"pid", dev.ProductID,
		"location_id", dev.LocationID)
}

func (c *consoleReporter) StageResult(dev rockusb.Device, stage string, err error) {
	if err == nil {
		slog.Info("stage_ok", "stage", stage, "location_id", dev.LocationID)
		return
	}

	c.finishBar()
	slog.Error("stage_failed", "stage", stage, "location_id", dev.LocationID, "error", err)

	if rockusb.NeedsMaskrom(err) {
		fmt.Printf("Device at location %d may need maskrom mode, see %s\n",
			dev.LocationID, rockusb.MaskromHint)
	}
}

func (c *consoleReporter) Progress(dev rockusb.Device, pct int) {
	if c.bar == nil {
		c.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription(fmt.Sprintf("Writing device %d", dev.LocationID)),
		)
	}
	c.bar.Set(pct)
}

func (c *consoleReporter) WriteComplete(dev rockusb.Device) {
	c.finishBar()
	slog.Info("write_complete", "location_id", dev.LocationID)
}

func (c *consoleReporter) SessionFatal(err error) {
	c.finishBar()
	slog.Error("session_fatal", "error", err)
}

func (c *consoleReporter) Summary(flashed, failed int) {
	c.finishBar()
	slog.Info("session_summary", "flashed", flashed, "failed", failed)
	fmt.Printf("Flashed %d device(s), %d failed\n", flashed, failed)
}

func (c *consoleReporter) finishBar() {
	if c.bar != nil {
		fmt.Println()
		c.bar = nil
	}
}
