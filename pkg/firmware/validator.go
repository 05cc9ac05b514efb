package firmware

import (
	"fmt"
	"log/slog"
	"os"
)

// Validator checks loader and image files before a flashing run starts.
// Catching a missing or truncated file here is much cheaper than having
// every attached board fail its loader upload one by one.
type Validator struct {
	maxLoaderSize int64
	maxImageSize  int64
}

// NewValidator creates a firmware file validator
func NewValidator(maxLoaderSize, maxImageSize int64) *Validator {
	slog.Info("firmware_validator_init",
		"max_loader_size_mb", maxLoaderSize/1024/1024,
		"max_image_size_mb", maxImageSize/1024/1024)

	return &Validator{
		maxLoaderSize: maxLoaderSize,
		maxImageSize:  maxImageSize,
	}
}

// ValidateLoader checks the loader binary sent with "ul"
func (v *Validator) ValidateLoader(path string) error {
	return v.validateFile("loader", path, v.maxLoaderSize)
}

// ValidateImage checks the system image written with "wl 0"
func (v *Validator) ValidateImage(path string) error {
	return v.validateFile("image", path, v.maxImageSize)
}

func (v *Validator) validateFile(kind, path string, maxSize int64) error {
	info, err := os.Stat(path)
	if err != nil {
		slog.Error("firmware_validation_failed", "kind", kind, "path", path, "reason", "stat", "error", err)
		return fmt.Errorf("firmware: %s file %s: %w", kind, path, err)
	}

	if info.IsDir() {
		slog.Error("firmware_validation_failed", "kind", kind, "path", path, "reason", "is_directory")
		return fmt.Errorf("firmware: %s path %s is a directory", kind, path)
	}

	if !info.Mode().IsRegular() {
		slog.Error("firmware_validation_failed", "kind", kind, "path", path, "reason", "not_regular")
		return fmt.Errorf("firmware: %s path %s is not a regular file", kind, path)
	}

	if info.Size() == 0 {
		slog.Error("firmware_validation_failed", "kind", kind, "path", path, "reason", "empty_file")
		return fmt.Errorf("firmware: %s file %s is empty", kind, path)
	}

	if maxSize > 0 && info.Size() > maxSize {
		slog.Error("firmware_size_exceeded",
			"kind", kind,
			"path", path,
			"size_mb", info.Size()/1024/1024,
			"max_size_mb", maxSize/1024/1024)
		return fmt.Errorf("firmware: %s file size %d exceeds max %d", kind, info.Size(), maxSize)
	}

	slog.Info("firmware_validated", "kind", kind, "path", path, "size_bytes", info.Size())
	return nil
}
