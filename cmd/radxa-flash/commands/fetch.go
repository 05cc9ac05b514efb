package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alanblu/radxa-flash-tool/internal/config"
	"github.com/alanblu/radxa-flash-tool/pkg/db"
	"github.com/alanblu/radxa-flash-tool/pkg/errors"
	"github.com/alanblu/radxa-flash-tool/pkg/storage"
	"github.com/spf13/cobra"
)

var fetchList bool

var fetchCmd = &cobra.Command{
	Use:   "fetch <artifact-key>",
	Short: "Fetch a firmware artifact from S3 into the work directory",
	Long: `Downloads a loader binary or system image from the firmware bucket.
Already-fetched artifacts are reused. With --list, shows the artifacts
available in the bucket instead (the key argument becomes a prefix).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().BoolVar(&fetchList, "list", false, "List available artifacts instead of downloading")
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config invalid")
	}

	s3Client, err := storage.NewClient(ctx, cfg.S3Bucket, cfg.S3Region)
	if err != nil {
		return errors.Wrap(err, "S3 client failed")
	}

	if fetchList {
		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}
		keys, err := s3Client.ListObjects(ctx, prefix)
		if err != nil {
			return errors.Wrap(err, "list failed")
		}
		if len(keys) == 0 {
			fmt.Println("No artifacts found")
			return nil
		}
		for _, key := range keys {
			fmt.Println(key)
		}
		return nil
	}

	if len(args) != 1 {
		return fmt.Errorf("artifact key required")
	}
	artifactKey := args[0]

	if err := ensureDirectories(cfg.SQLitePath, "", cfg.WorkDir); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	localPath := filepath.Join(cfg.WorkDir, filepath.Base(artifactKey))

	// Reuse an artifact that was already fetched and is still on disk.
	existing, err := repo.GetByS3Key(artifactKey)
	if err != nil {
		return errors.Wrap(err, "cache lookup failed")
	}
	if existing != nil && existing.Status == db.StatusReady {
		if _, statErr := os.Stat(existing.LocalPath); statErr == nil {
			slog.Info("artifact_cached", "s3_key", artifactKey, "local_path", existing.LocalPath)
			fmt.Println(existing.LocalPath)
			return nil
		}
		slog.Warn("cached_artifact_missing_on_disk", "s3_key", artifactKey, "local_path", existing.LocalPath)
	}

	exists, err := s3Client.Exists(ctx, artifactKey)
	if err != nil {
		return errors.Wrap(err, "existence check failed")
	}
	if !exists {
		return fmt.Errorf("artifact not found in bucket: %s", artifactKey)
	}

	art := existing
	if art == nil {
		art = &db.Artifact{S3Key: artifactKey, SHA256: "", Status: db.StatusDownloading}
		if err := repo.Create(art); err != nil {
			return errors.Wrap(err, "cache record failed")
		}
	} else if err := repo.UpdateStatus(art.ID, db.StatusDownloading, ""); err != nil {
		return errors.Wrap(err, "cache update failed")
	}

	result, err := s3Client.Download(ctx, artifactKey, localPath)
	if err != nil {
		repo.UpdateStatus(art.ID, db.StatusFailed, err.Error())
		return errors.Wrap(err, "download failed")
	}

	art.SHA256 = result.SHA256
	art.LocalPath = result.LocalPath
	art.SizeBytes = result.Size
	art.Status = db.StatusReady
	art.ErrorMessage = ""
	if err := repo.Update(art); err != nil {
		return errors.Wrap(err, "cache update failed")
	}

	fmt.Println(result.LocalPath)
	return nil
}
