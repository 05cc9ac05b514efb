package firmware

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestValidateLoader(t *testing.T) {
	v := NewValidator(100, 1000)

	path := writeTempFile(t, "loader.bin", 50)
	if err := v.ValidateLoader(path); err != nil {
		t.Errorf("expected no error for size 50, got: %v", err)
	}

	big := writeTempFile(t, "big.bin", 150)
	if err := v.ValidateLoader(big); err == nil {
		t.Error("expected error for size 150 exceeding limit 100")
	}
}

func TestValidateImage(t *testing.T) {
	v := NewValidator(100, 200)

	path := writeTempFile(t, "system.img", 150)
	if err := v.ValidateImage(path); err != nil {
		t.Errorf("expected no error for size 150, got: %v", err)
	}

	big := writeTempFile(t, "huge.img", 300)
	if err := v.ValidateImage(big); err == nil {
		t.Error("expected error for size 300 exceeding limit 200")
	}
}

func TestValidate_MissingFile(t *testing.T) {
	v := NewValidator(100, 100)

	if err := v.ValidateLoader(filepath.Join(t.TempDir(), "absent.bin")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate_EmptyFile(t *testing.T) {
	v := NewValidator(100, 100)

	path := writeTempFile(t, "empty.img", 0)
	if err := v.ValidateImage(path); err == nil {
		t.Error("expected error for empty file")
	}
}

func TestValidate_Directory(t *testing.T) {
	v := NewValidator(100, 100)

	if err := v.ValidateLoader(t.TempDir()); err == nil {
		t.Error("expected error for directory path")
	}
}

func TestValidate_NoCeiling(t *testing.T) {
	v := NewValidator(0, 0)

	path := writeTempFile(t, "any.img", 5000)
	if err := v.ValidateImage(path); err != nil {
		t.Errorf("zero ceiling should disable the size check, got: %v", err)
	}
}
