package latticecfg

import (
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LATTICE_HEIGHT_STRATEGY", "")
	t.Setenv("LATTICE_BOOTSTRAP_AUTO_APPROVE", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HeightStrategy != "incremental" {
		t.Fatalf("expected default height strategy 'incremental', got %q", cfg.HeightStrategy)
	}
	if cfg.BootstrapAutoApprove {
		t.Fatalf("expected bootstrap-auto-approve to default false")
	}
	if !cfg.SyncOnCommit {
		t.Fatalf("expected sync-on-commit to default true")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("LATTICE_BOOTSTRAP_AUTO_APPROVE", "true")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.BootstrapAutoApprove {
		t.Fatalf("expected LATTICE_BOOTSTRAP_AUTO_APPROVE=true to override default")
	}
}

func TestPeerTopologyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sync-peers.yaml")

	want := &PeerTopology{
		Peers: []PeerTopologyEntry{
			{Pubkey: "ed25519:aaaa", DisplayName: "Alice", Addresses: []string{"tcp://10.0.0.1:9000"}},
			{Pubkey: "ed25519:bbbb", Addresses: []string{"tcp://10.0.0.2:9000"}},
		},
	}
	if err := WritePeerTopology(path, want); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := LoadPeerTopology(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Peers) != 2 {
		t.Fatalf("expected 2 peers, got %d", len(got.Peers))
	}
	if got.Peers[0].Pubkey != "ed25519:aaaa" || got.Peers[0].DisplayName != "Alice" {
		t.Fatalf("unexpected first peer: %+v", got.Peers[0])
	}
	if len(got.Peers[1].Addresses) != 1 || got.Peers[1].Addresses[0] != "tcp://10.0.0.2:9000" {
		t.Fatalf("unexpected second peer addresses: %+v", got.Peers[1])
	}
}
