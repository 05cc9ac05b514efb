package commands

import (
	"os"
	"path/filepath"

	"github.com/alanblu/radxa-flash-tool/pkg/errors"
)

// ensureDirectories creates the directories a command needs. Empty
// arguments are skipped so each command asks only for what it uses.
func ensureDirectories(sqlitePath, fsmDBPath, workDir string) error {
	if sqlitePath != "" {
		if err := os.MkdirAll(filepath.Dir(sqlitePath), 0755); err != nil {
			return errors.Wrap(err, "failed to create database directory")
		}
	}

	if fsmDBPath != "" {
		if err := os.MkdirAll(fsmDBPath, 0755); err != nil {
			return errors.Wrap(err, "failed to create FSM directory")
		}
	}

	if workDir != "" {
		if err := os.MkdirAll(workDir, 0755); err != nil {
			return errors.Wrap(err, "failed to create work directory")
		}
	}

	return nil
}
