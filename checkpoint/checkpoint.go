// Package checkpoint persists the coordinator's commit state between runs.
// The state is written with the write-and-rename strategy so that a crash
// mid-write never leaves a corrupt or partially visible state file.
package checkpoint

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/INLOpen/lakesink/core"
	"github.com/spf13/afero"
)

// Write atomically writes the commit state to its file in the given
// directory.
func Write(fs afero.Fs, dir string, state *core.CommitState) error {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create commit state directory: %w", err)
	}

	tempPath := filepath.Join(dir, core.FormatTempFilename(core.CommitStateFileName, "tmp"))
	file, err := fs.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temp commit state file: %w", err)
	}

	if err := binary.Write(file, binary.LittleEndian, core.CommitStateMagicNumber); err != nil {
		file.Close()
		return fmt.Errorf("failed to write commit state magic number: %w", err)
	}
	if err := binary.Write(file, binary.LittleEndian, core.FormatVersion); err != nil {
		file.Close()
		return fmt.Errorf("failed to write commit state version: %w", err)
	}
	if err := binary.Write(file, binary.LittleEndian, state.LastCommitted); err != nil {
		file.Close()
		return fmt.Errorf("failed to write last committed checkpoint id: %w", err)
	}
	if _, err := state.Seen.WriteTo(file); err != nil {
		file.Close()
		return fmt.Errorf("failed to write seen pairs bitmap: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync temp commit state file: %w", err)
	}
	// Close before renaming for Windows compatibility.
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close temp commit state file before rename: %w", err)
	}

	finalPath := filepath.Join(dir, core.CommitStateFileName)
	if err := fs.Rename(tempPath, finalPath); err != nil {
		return fmt.Errorf("failed to rename temp commit state file to final name: %w", err)
	}
	return nil
}

// Read reads the commit state from the given directory. It returns the state
// and a boolean indicating whether the file existed; an absent file is not
// an error, it means no checkpoint has been committed yet.
func Read(fs afero.Fs, dir string) (*core.CommitState, bool, error) {
	path := filepath.Join(dir, core.CommitStateFileName)
	file, err := fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return core.NewCommitState(), false, nil
		}
		return nil, false, fmt.Errorf("failed to open commit state file: %w", err)
	}
	defer file.Close()

	var magic uint32
	if err := binary.Read(file, binary.LittleEndian, &magic); err != nil {
		return nil, true, fmt.Errorf("failed to read commit state magic number: %w", err)
	}
	if magic != core.CommitStateMagicNumber {
		return nil, true, fmt.Errorf("invalid commit state magic number: got %x, want %x", magic, core.CommitStateMagicNumber)
	}
	var version uint8
	if err := binary.Read(file, binary.LittleEndian, &version); err != nil {
		return nil, true, fmt.Errorf("failed to read commit state version: %w", err)
	}
	if version != core.FormatVersion {
		return nil, true, fmt.Errorf("unsupported commit state version %d", version)
	}

	state := core.NewCommitState()
	if err := binary.Read(file, binary.LittleEndian, &state.LastCommitted); err != nil {
		return nil, true, fmt.Errorf("failed to read last committed checkpoint id: %w", err)
	}
	if _, err := state.Seen.ReadFrom(file); err != nil {
		return nil, true, fmt.Errorf("failed to read seen pairs bitmap: %w", err)
	}
	return state, true, nil
}
