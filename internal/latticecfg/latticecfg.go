// Package latticecfg loads Instance-level defaults (default
// HeightStrategy, default sync settings, default auth policy) the way
// the teacher's internal/config loads its CLI defaults: a spf13/viper
// instance, SetEnvPrefix, SetDefault-registered defaults, and an
// optional config file located by walking up from the working
// directory (SPEC_FULL.md §2.3).
//
// Grounded in _examples/untoldecay-BeadsLog/internal/config/config.go.
package latticecfg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved set of Instance-level defaults.
type Config struct {
	// HeightStrategy is "incremental" or "timestamp" (SPEC_FULL.md §4
	// item 6); "incremental" unless overridden.
	HeightStrategy string
	// BootstrapAutoApprove holds the bootstrap-auto-approve setting.
	// Instance.CreateDatabase does not read it; new databases start with
	// bootstrap auto-approve off.
	BootstrapAutoApprove bool
	// SyncOnCommit holds the sync-on-commit setting. No package reads it;
	// the commit hook runs whenever one is installed on the Instance.
	SyncOnCommit bool
	// PeerRetryBaseDelay holds the peer-retry-base-delay setting (default
	// 1s). The syncsvc Scheduler does not read it; its base delay is the
	// fixed backoffBase.
	PeerRetryBaseDelay time.Duration
	// InstanceDir is the on-disk directory holding this Instance's local
	// config.toml and (if present) sync-peers.yaml.
	InstanceDir string
}

const (
	dirName        = ".lattice"
	localFileName  = "config.toml"
	envPrefix      = "LATTICE"
	defaultBaseDir = "1s"
)

// Load resolves Config from, in ascending precedence: built-in defaults,
// a TOML config file located by walking up from the working directory
// (or in $XDG_CONFIG_HOME/lattice, or ~/.lattice), then LATTICE_*
// environment variables.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	configFileSet := false
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			candidate := filepath.Join(dir, dirName, localFileName)
			if _, err := os.Stat(candidate); err == nil {
				v.SetConfigFile(candidate)
				configFileSet = true
				break
			}
		}
	}
	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			candidate := filepath.Join(configDir, "lattice", localFileName)
			if _, err := os.Stat(candidate); err == nil {
				v.SetConfigFile(candidate)
				configFileSet = true
			}
		}
	}
	if !configFileSet {
		if home, err := os.UserHomeDir(); err == nil {
			candidate := filepath.Join(home, dirName, localFileName)
			if _, err := os.Stat(candidate); err == nil {
				v.SetConfigFile(candidate)
				configFileSet = true
			}
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("height-strategy", "incremental")
	v.SetDefault("bootstrap-auto-approve", false)
	v.SetDefault("sync-on-commit", true)
	v.SetDefault("peer-retry-base-delay", defaultBaseDir)
	v.SetDefault("instance-dir", defaultInstanceDir())

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("latticecfg: reading config file: %w", err)
		}
	}

	delay, err := time.ParseDuration(v.GetString("peer-retry-base-delay"))
	if err != nil {
		return nil, fmt.Errorf("latticecfg: invalid peer-retry-base-delay %q: %w", v.GetString("peer-retry-base-delay"), err)
	}

	return &Config{
		HeightStrategy:       v.GetString("height-strategy"),
		BootstrapAutoApprove: v.GetBool("bootstrap-auto-approve"),
		SyncOnCommit:         v.GetBool("sync-on-commit"),
		PeerRetryBaseDelay:   delay,
		InstanceDir:          v.GetString("instance-dir"),
	}, nil
}

func defaultInstanceDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, dirName)
	}
	return dirName
}
