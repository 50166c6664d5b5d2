package entry

import (
	"encoding/json"
	"fmt"
)

// settingsTipsMetadata is the canonical encoding of an Entry's metadata
// field: a JSON object carrying, at minimum, the `_settings` sub-store
// tips captured when the Entry was built (§3.2, §9's "representation of
// settings tips at entry-creation-time" open question).
type settingsTipsMetadata struct {
	SettingsTips []ID `json:"settings_tips"`
}

// EncodeSettingsTips renders the metadata string for a given settings-tips
// set, sorted for stable output.
func EncodeSettingsTips(tips []ID) (string, error) {
	b, err := json.Marshal(settingsTipsMetadata{SettingsTips: sortedIDs(tips)})
	if err != nil {
		return "", fmt.Errorf("entry: encode metadata: %w", err)
	}
	return string(b), nil
}

// DecodeSettingsTips parses the metadata string back to a settings-tips
// set. Empty metadata decodes to an empty (nil) slice.
func DecodeSettingsTips(metadata string) ([]ID, error) {
	if metadata == "" {
		return nil, nil
	}
	var m settingsTipsMetadata
	if err := json.Unmarshal([]byte(metadata), &m); err != nil {
		return nil, fmt.Errorf("entry: decode metadata: %w", err)
	}
	return m.SettingsTips, nil
}
