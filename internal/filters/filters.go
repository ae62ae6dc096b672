// Package filters loads the per-corporation ship filter presets shown in the dashboard.
package filters

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/bytedance/sonic"
)

// DefaultKey holds the presets used for corporations without their own entry.
const DefaultKey = "all"

// Filters maps a corporation id (or DefaultKey) to the dashboard's filter
// presets. The presets are passed through to the client unchanged.
type Filters struct {
	presets map[string]json.RawMessage
}

// Load reads the filter file. A missing file yields empty filters.
func Load(path string) (*Filters, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Filters{presets: map[string]json.RawMessage{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read filters %s: %w", path, err)
	}

	var presets map[string]json.RawMessage
	if err := sonic.Unmarshal(data, &presets); err != nil {
		return nil, fmt.Errorf("failed to decode filters %s: %w", path, err)
	}

	if presets == nil {
		presets = map[string]json.RawMessage{}
	}

	return &Filters{presets: presets}, nil
}

// For returns the corporation's presets, falling back to the default entry.
// It returns nil when neither exists.
func (f *Filters) For(corporationID int64) json.RawMessage {
	if preset, ok := f.presets[strconv.FormatInt(corporationID, 10)]; ok {
		return preset
	}

	return f.presets[DefaultKey]
}
