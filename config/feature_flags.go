package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages runtime toggles of optional behavior.
type FeatureFlags struct {
	mu       sync.RWMutex
	features map[string]*Feature
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool
}

// Predefined feature flag names.
const (
	// Call the remote award endpoint before the local mirror.
	FeatureRemoteAward = "stars.remote_award"

	// Ask the server to backfill stars before a reconciliation pass.
	FeatureServerSync = "stars.server_sync"

	// Cache leaderboard pages in Redis.
	FeatureLeaderboardCache = "leaderboard.cache"

	// Reconcile opportunistically when a CLI session starts.
	FeatureReconcileOnStart = "reconcile.on_start"
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{features: make(map[string]*Feature)}
	ff.initializeDefaults()
	ff.loadFromEnvironment()
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureRemoteAward] = &Feature{
		Name:        FeatureRemoteAward,
		Description: "Award stars on the remote store first",
		Enabled:     true,
	}
	ff.features[FeatureServerSync] = &Feature{
		Name:        FeatureServerSync,
		Description: "Request a server-side star backfill before reconciling",
		Enabled:     false,
	}
	ff.features[FeatureLeaderboardCache] = &Feature{
		Name:        FeatureLeaderboardCache,
		Description: "Cache leaderboard pages in Redis",
		Enabled:     true,
	}
	ff.features[FeatureReconcileOnStart] = &Feature{
		Name:        FeatureReconcileOnStart,
		Description: "Reconcile stars once per CLI session",
		Enabled:     false,
	}
}

// loadFromEnvironment applies overrides of the form FEATURE_<NAME>=true|false.
// Example: FEATURE_STARS_SERVER_SYNC=true
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, f := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			f.Enabled = b
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "stars.server_sync" -> "FEATURE_STARS_SERVER_SYNC"
func featureNameToEnvKey(name string) string {
	return "FEATURE_" + strings.ToUpper(strings.ReplaceAll(name, ".", "_"))
}

// IsEnabled reports whether a feature is on. Unknown features are off.
func (ff *FeatureFlags) IsEnabled(name string) bool {
	if ff == nil {
		return false
	}
	ff.mu.RLock()
	defer ff.mu.RUnlock()
	f, ok := ff.features[name]
	return ok && f.Enabled
}

// Set toggles a feature. Unknown features are registered.
func (ff *FeatureFlags) Set(name string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if f, ok := ff.features[name]; ok {
		f.Enabled = enabled
		return
	}
	ff.features[name] = &Feature{Name: name, Enabled: enabled}
}

// Names returns every registered feature name, sorted.
func (ff *FeatureFlags) Names() []string {
	ff.mu.RLock()
	defer ff.mu.RUnlock()
	names := make([]string, 0, len(ff.features))
	for name := range ff.features {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
