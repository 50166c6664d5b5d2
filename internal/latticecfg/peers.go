package latticecfg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PeerTopology is the checked-in shape of a sync-peers.yaml file: a flat
// list of known peers and the addresses to reach them at, read with
// gopkg.in/yaml.v3 directly rather than through viper since it's a list,
// not scalar settings (SPEC_FULL.md §2.3) — the same split the teacher
// draws between config.yaml (viper) and hand-parsed structured YAML
// elsewhere in its codebase.
type PeerTopology struct {
	Peers []PeerTopologyEntry `yaml:"peers"`
}

// PeerTopologyEntry names one peer this Instance should handshake with
// on startup: its public key and the addresses to dial.
type PeerTopologyEntry struct {
	Pubkey      string   `yaml:"pubkey"`
	DisplayName string   `yaml:"display_name,omitempty"`
	Addresses   []string `yaml:"addresses"`
}

// LoadPeerTopology reads and parses a sync-peers.yaml file at path.
func LoadPeerTopology(path string) (*PeerTopology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("latticecfg: read peer topology %s: %w", path, err)
	}
	var t PeerTopology
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("latticecfg: parse peer topology %s: %w", path, err)
	}
	return &t, nil
}

// WritePeerTopology serializes t to path, overwriting any existing file.
func WritePeerTopology(path string, t *PeerTopology) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("latticecfg: marshal peer topology: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("latticecfg: write peer topology %s: %w", path, err)
	}
	return nil
}
