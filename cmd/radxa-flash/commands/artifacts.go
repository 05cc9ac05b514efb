package commands

import (
	"fmt"

	"github.com/alanblu/radxa-flash-tool/internal/config"
	"github.com/alanblu/radxa-flash-tool/pkg/db"
	"github.com/alanblu/radxa-flash-tool/pkg/errors"
	"github.com/spf13/cobra"
)

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "List cached firmware artifacts and their status",
	RunE:  runArtifacts,
}

func init() {
	rootCmd.AddCommand(artifactsCmd)
}

func runArtifacts(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	// Ensure database directory exists
	if err := ensureDirectories(cfg.SQLitePath, "", ""); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	artifacts, err := repo.List()
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	if len(artifacts) == 0 {
		fmt.Println("No artifacts found")
		return nil
	}

	fmt.Printf("%-50s %-12s %-12s %-40s\n", "S3 KEY", "STATUS", "SIZE (MB)", "LOCAL PATH")
	fmt.Println("--------------------------------------------------------------------------------------------------------------")

	for _, art := range artifacts {
		localPath := art.LocalPath
		if localPath == "" {
			localPath = "-"
		}

		fmt.Printf("%-50s %-12s %-12d %-40s\n",
			art.S3Key, art.Status, art.SizeBytes/1024/1024, localPath)
	}

	return nil
}
