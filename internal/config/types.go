package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Cowin     CowinConfig     `json:"cowin"`
	Broadcast BroadcastConfig `json:"broadcast"`
}

type TelegramConfig struct {
	// TokenEnv names the environment variable holding the bot token.
	// The token itself never lives in the config file.
	TokenEnv    string `json:"token_env,omitempty"`
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console *bool         `json:"console,omitempty"`
	File    LogFileConfig `json:"file,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

type StorageConfig struct {
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// CowinConfig controls the upstream capacity API client.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "2m").
type CowinConfig struct {
	BaseURL         string `json:"base_url,omitempty"`
	RequestTimeout  string `json:"request_timeout,omitempty"`
	CacheTTL        string `json:"cache_ttl,omitempty"`
	CacheMaxEntries int    `json:"cache_max_entries,omitempty"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`

	// ReferenceDir holds the on-disk fallback snapshots for the
	// state/district hierarchy.
	ReferenceDir string `json:"reference_dir,omitempty"`
}

// BroadcastConfig controls the notification cycle.
//
// Defaults (when fields are omitted/zero):
//   - schedule: "@every 5m"
//   - workers: 4
//   - min_capacity: 1
//   - top_centers: 5
//   - resend_after: "45m"
//   - center_growth: 10% relative, +2 absolute
//   - slot_growth: 20% relative, +50 absolute
type BroadcastConfig struct {
	Schedule    string `json:"schedule,omitempty"`
	Workers     int    `json:"workers,omitempty"`
	MinCapacity int    `json:"min_capacity,omitempty"`
	TopCenters  int    `json:"top_centers,omitempty"`
	ResendAfter string `json:"resend_after,omitempty"`

	CenterGrowth *GrowthGate `json:"center_growth,omitempty"`
	SlotGrowth   *GrowthGate `json:"slot_growth,omitempty"`
}

// GrowthGate is a dual relative+absolute growth condition.
// Both must hold for the gate to pass.
type GrowthGate struct {
	Relative float64 `json:"relative"`
	Absolute int     `json:"absolute"`
}

const (
	DefaultTokenEnv        = "COWIN_TEL_BOT_KEY"
	DefaultBaseURL         = "https://cdn-api.co-vin.in"
	DefaultSchedule        = "@every 5m"
	DefaultPollTimeout     = 10 * time.Second
	DefaultRequestTimeout  = 15 * time.Second
	DefaultCacheTTL        = 120 * time.Second
	DefaultCacheMaxEntries = 1024
	DefaultResendAfter     = 45 * time.Minute
)

func (c *TelegramConfig) ResolvedTokenEnv() string {
	if v := strings.TrimSpace(c.TokenEnv); v != "" {
		return v
	}
	return DefaultTokenEnv
}

func (c *TelegramConfig) ResolvedPollTimeout() (time.Duration, error) {
	return ParseDurationOrDefault("telegram.poll_timeout", c.PollTimeout, DefaultPollTimeout)
}

func (c *LoggingConfig) ConsoleEnabled() bool {
	if c.Console == nil {
		return true
	}
	return *c.Console
}

func (c *StorageConfig) ResolvedBusyTimeout() (time.Duration, error) {
	return ParseDurationOrDefault("storage.busy_timeout", c.BusyTimeout, 5*time.Second)
}

func (c *CowinConfig) ResolvedBaseURL() string {
	if v := strings.TrimSpace(c.BaseURL); v != "" {
		return strings.TrimRight(v, "/")
	}
	return DefaultBaseURL
}

func (c *CowinConfig) ResolvedRequestTimeout() (time.Duration, error) {
	return ParseDurationOrDefault("cowin.request_timeout", c.RequestTimeout, DefaultRequestTimeout)
}

func (c *CowinConfig) ResolvedCacheTTL() (time.Duration, error) {
	return ParseDurationOrDefault("cowin.cache_ttl", c.CacheTTL, DefaultCacheTTL)
}

func (c *CowinConfig) ResolvedCacheMaxEntries() int {
	if c.CacheMaxEntries > 0 {
		return c.CacheMaxEntries
	}
	return DefaultCacheMaxEntries
}

func (c *BroadcastConfig) ResolvedSchedule() string {
	if v := strings.TrimSpace(c.Schedule); v != "" {
		return v
	}
	return DefaultSchedule
}

func (c *BroadcastConfig) ResolvedWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return 4
}

func (c *BroadcastConfig) ResolvedMinCapacity() int {
	if c.MinCapacity > 0 {
		return c.MinCapacity
	}
	return 1
}

func (c *BroadcastConfig) ResolvedTopCenters() int {
	if c.TopCenters > 0 {
		return c.TopCenters
	}
	return 5
}

func (c *BroadcastConfig) ResolvedResendAfter() (time.Duration, error) {
	return ParseDurationOrDefault("broadcast.resend_after", c.ResendAfter, DefaultResendAfter)
}

func (c *BroadcastConfig) ResolvedCenterGrowth() GrowthGate {
	if c.CenterGrowth != nil {
		return *c.CenterGrowth
	}
	return GrowthGate{Relative: 0.10, Absolute: 2}
}

func (c *BroadcastConfig) ResolvedSlotGrowth() GrowthGate {
	if c.SlotGrowth != nil {
		return *c.SlotGrowth
	}
	return GrowthGate{Relative: 0.20, Absolute: 50}
}

// Validate resolves every duration field and checks cross-field sanity.
// It is run before a parsed config is committed or published.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Telegram.ResolvedPollTimeout(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Storage.ResolvedBusyTimeout(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Cowin.ResolvedRequestTimeout(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Cowin.ResolvedCacheTTL(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Broadcast.ResolvedResendAfter(); err != nil {
		errs = append(errs, err)
	}
	if c.Cowin.CacheMaxEntries < 0 {
		errs = append(errs, fmt.Errorf("cowin.cache_max_entries: must be >= 0"))
	}
	for _, g := range []struct {
		path string
		gate *GrowthGate
	}{
		{"broadcast.center_growth", c.Broadcast.CenterGrowth},
		{"broadcast.slot_growth", c.Broadcast.SlotGrowth},
	} {
		if g.gate == nil {
			continue
		}
		if g.gate.Relative < 0 || g.gate.Absolute < 0 {
			errs = append(errs, fmt.Errorf("%s: relative and absolute must be >= 0", g.path))
		}
	}
	return errors.Join(errs...)
}
