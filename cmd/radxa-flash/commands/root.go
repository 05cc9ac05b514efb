package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// LogLevel is shared with main so --verbose can lower the threshold
// before any command runs.
var LogLevel = new(slog.LevelVar)

var rootCmd = &cobra.Command{
	Use:   "radxa-flash",
	Short: "Radxa CM3 batch flashing tool",
	Long:  `Drives the Rockchip upgrade_tool to flash every connected Radxa CM3 board: loader upload, image write, and per-device progress tracking.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if viper.GetBool("verbose") {
			LogLevel.Set(slog.LevelDebug)
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("upgrade-command", "sudo ./upgrade_tool", "Command that starts the flashing tool")
	rootCmd.PersistentFlags().String("loader-path", "./RTE_Files/rk356x_spl_loader_ddr1056_v1.10.111.bin", "Loader binary path")
	rootCmd.PersistentFlags().String("image-path", "./RTE_Files/lade-image-radxa-radxa-cm3-io-rk3566-20230505103716.gptimg", "System image path")
	rootCmd.PersistentFlags().String("sqlite-path", ".artifacts/artifacts.db", "SQLite database path")
	rootCmd.PersistentFlags().String("fsm-db-path", ".artifacts/fsm.db", "FSM BoltDB path")
	rootCmd.PersistentFlags().String("s3-bucket", "radxa-firmware-artifacts", "S3 bucket name")
	rootCmd.PersistentFlags().String("s3-region", "us-east-1", "S3 region")
	rootCmd.PersistentFlags().String("work-dir", "/tmp/radxa-flash", "Directory for fetched artifacts")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")

	viper.BindPFlag("upgrade-command", rootCmd.PersistentFlags().Lookup("upgrade-command"))
	viper.BindPFlag("loader-path", rootCmd.PersistentFlags().Lookup("loader-path"))
	viper.BindPFlag("image-path", rootCmd.PersistentFlags().Lookup("image-path"))
	viper.BindPFlag("sqlite-path", rootCmd.PersistentFlags().Lookup("sqlite-path"))
	viper.BindPFlag("fsm-db-path", rootCmd.PersistentFlags().Lookup("fsm-db-path"))
	viper.BindPFlag("s3-bucket", rootCmd.PersistentFlags().Lookup("s3-bucket"))
	viper.BindPFlag("s3-region", rootCmd.PersistentFlags().Lookup("s3-region"))
	viper.BindPFlag("work-dir", rootCmd.PersistentFlags().Lookup("work-dir"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}
