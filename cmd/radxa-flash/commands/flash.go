package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alanblu/radxa-flash-tool/internal/config"
	"github.com/alanblu/radxa-flash-tool/pkg/errors"
	"github.com/alanblu/radxa-flash-tool/pkg/firmware"
	appfsm "github.com/alanblu/radxa-flash-tool/pkg/fsm"
	"github.com/alanblu/radxa-flash-tool/pkg/rockusb"
	"github.com/alanblu/radxa-flash-tool/pkg/transcript"
	"github.com/spf13/cobra"
	"github.com/superfly/fsm"
)

var flashCmd = &cobra.Command{
	Use:   "flash",
	Short: "Flash every connected rockusb device",
	Long: `Starts the upgrade_tool, discovers connected rockusb devices, and
flashes each one in turn: loader upload, image write, progress tracking.
A failed device is skipped; the run continues with the next one.`,
	RunE: runFlash,
}

func init() {
	rootCmd.AddCommand(flashCmd)
}

func runFlash(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config invalid")
	}

	if err := ensureDirectories("", cfg.FSMDBPath, ""); err != nil {
		return err
	}

	validator := firmware.NewValidator(cfg.MaxLoaderSize, cfg.MaxImageSize)
	if err := validator.ValidateLoader(cfg.LoaderPath); err != nil {
		return err
	}
	if err := validator.ValidateImage(cfg.ImagePath); err != nil {
		return err
	}

	tr, err := transcript.Spawn(cfg.UpgradeCommand)
	if err != nil {
		return errors.Wrap(err, "failed to start flashing tool")
	}
	defer tr.Close()

	// An interrupt releases the tool's pty, which surfaces to the
	// session as a closed stream.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		sig, ok := <-sigCh
		if !ok {
			return
		}
		slog.Warn("interrupt_received", "signal", sig.String())
		tr.Close()
	}()

	reporter := newConsoleReporter()
	session := rockusb.NewSession(tr, rockusb.Config{
		LoaderPath:        cfg.LoaderPath,
		ImagePath:         cfg.ImagePath,
		UploadTimeout:     cfg.UploadTimeout,
		WriteCheckTimeout: cfg.WriteCheckTimeout,
	}, reporter)

	devices, err := session.Discover(ctx)
	if err != nil {
		return errors.Wrap(err, "device discovery failed")
	}
	if len(devices) == 0 {
		slog.Info("no_devices_found")
		fmt.Printf("No rockusb devices found. Put the board in maskrom mode first: %s\n",
			rockusb.MaskromHint)
		return nil
	}

	manager, err := fsm.New(fsm.Config{DBPath: cfg.FSMDBPath})
	if err != nil {
		return errors.Wrap(err, "FSM manager failed")
	}
	defer manager.Shutdown(10 * time.Second)

	machine := appfsm.NewMachine(session, reporter, cfg.FSMMaxRetries)
	start, _, err := machine.Register(ctx, manager)
	if err != nil {
		return errors.Wrap(err, "FSM register failed")
	}

	var flashed, failed int
	var fatalErr error

	for i, dev := range devices {
		req := &appfsm.FlashRequest{Device: dev}
		resp := &appfsm.FlashResponse{}

		// Timestamped run keys keep reruns of the same board from
		// colliding with persisted FSM state.
		key := fmt.Sprintf("device-%d-%d", dev.LocationID, time.Now().Unix())

		version, err := start(ctx, key, fsm.NewRequest(req, resp))
		if err != nil {
			return errors.Wrap(err, "FSM start failed")
		}

		waitErr := manager.Wait(ctx, version)

		if resp.Status == appfsm.StatusComplete {
			flashed++
			continue
		}

		failed++
		if resp.Fatal {
			fatalErr = fmt.Errorf("session ended at stage %s: %s", resp.Stage, resp.ErrorMessage)
			break
		}
		if waitErr != nil {
			slog.Warn("device_flash_aborted", "location_id", dev.LocationID, "error", waitErr)
		}

		// Bring the tool back to its device prompt so the remaining
		// boards start from a known state.
		if i < len(devices)-1 {
			if err := session.ReturnToPrompt(ctx); err != nil {
				fatalErr = errors.Wrap(err, "could not recover tool prompt")
				break
			}
		}
	}

	reporter.Summary(flashed, failed)

	return fatalErr
}
