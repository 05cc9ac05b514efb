package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/alanblu/radxa-flash-tool/internal/config"
	"github.com/alanblu/radxa-flash-tool/pkg/db"
	"github.com/alanblu/radxa-flash-tool/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	cleanupAll      bool
	cleanupArtifact string
	cleanupOrphaned bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Clean up fetched firmware artifacts",
	Long: `Clean up cached firmware artifacts:
  --all                 Remove all fetched artifacts and their records
  --artifact <s3-key>   Remove a specific artifact
  --orphaned            Remove files in the work directory not tracked in the database`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupAll, "all", false, "Remove all artifacts")
	cleanupCmd.Flags().StringVar(&cleanupArtifact, "artifact", "", "Remove specific artifact by S3 key")
	cleanupCmd.Flags().BoolVar(&cleanupOrphaned, "orphaned", false, "Remove untracked files from the work directory")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	switch {
	case cleanupAll:
		return cleanupAllArtifacts(repo)
	case cleanupArtifact != "":
		return cleanupSpecificArtifact(repo, cleanupArtifact)
	case cleanupOrphaned:
		return cleanupOrphanedFiles(repo, cfg)
	default:
		return fmt.Errorf("must specify --all, --artifact, or --orphaned")
	}
}

func cleanupAllArtifacts(repo *db.Repository) error {
	artifacts, err := repo.List()
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	fmt.Printf("Cleaning up %d artifact(s)...\n", len(artifacts))

	for _, art := range artifacts {
		if err := removeArtifact(repo, art); err != nil {
			fmt.Printf("Failed to clean %s: %v\n", art.S3Key, err)
		} else {
			fmt.Printf("Cleaned: %s\n", art.S3Key)
		}
	}

	return nil
}

func cleanupSpecificArtifact(repo *db.Repository, s3Key string) error {
	art, err := repo.GetByS3Key(s3Key)
	if err != nil {
		return errors.Wrap(err, "lookup failed")
	}
	if art == nil {
		return fmt.Errorf("artifact not found: %s", s3Key)
	}

	if err := removeArtifact(repo, art); err != nil {
		return errors.Wrap(err, "cleanup failed")
	}

	fmt.Printf("Cleaned: %s\n", s3Key)
	return nil
}

func removeArtifact(repo *db.Repository, art *db.Artifact) error {
	if art.LocalPath != "" {
		if _, err := os.Stat(art.LocalPath); err == nil {
			if err := os.Remove(art.LocalPath); err != nil {
				return errors.Wrap(err, "failed to remove local file")
			}
		}
	}

	return repo.Delete(art.ID)
}

func cleanupOrphanedFiles(repo *db.Repository, cfg *config.Config) error {
	fmt.Println("Scanning for orphaned files...")

	artifacts, err := repo.List()
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	tracked := make(map[string]bool, len(artifacts))
	for _, art := range artifacts {
		if art.LocalPath != "" {
			tracked[art.LocalPath] = true
		}
	}

	orphanCount := 0
	entries, err := os.ReadDir(cfg.WorkDir)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("Work directory does not exist, nothing to clean")
			return nil
		}
		return errors.Wrap(err, "failed to read work directory")
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(cfg.WorkDir, entry.Name())
		if tracked[path] {
			continue
		}

		if err := os.Remove(path); err != nil {
			fmt.Printf("Failed to remove orphaned file %s: %v\n", entry.Name(), err)
		} else {
			fmt.Printf("Removed orphaned file: %s\n", entry.Name())
			orphanCount++
		}
	}

	fmt.Printf("Removed %d orphaned file(s)\n", orphanCount)
	return nil
}
