package fund

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"CoinSentinel/internal/model"
)

// LoadState reads the capital book from a JSON file. A missing file yields a zero state.
func LoadState(filePath string) (*model.FundState, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &model.FundState{}, nil
		}
		return nil, fmt.Errorf("read fund state: %w", err)
	}
	var state model.FundState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode fund state %s: %w", filePath, err)
	}
	return &state, nil
}

// SaveState writes the capital book through a temp file and rename so a crash
// never leaves a half-written file behind.
func SaveState(filePath string, state *model.FundState, now time.Time) error {
	state.UpdatedAt = now
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write fund state: %w", err)
	}
	return os.Rename(tmp, filePath)
}
