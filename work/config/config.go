package config

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"sync"
	"time"
)

// Config holds all application configuration values for the game DVR server.
// It covers the public/LAN base URLs, download paths, resolution and proxy
// timeouts, the supervisor retry policy, and per-provider overrides.
type Config struct {
	BaseURL                 string           `json:"baseURL"`                 // Public base URL, used for sanity checks and playlist links
	LanURL                  string           `json:"lanURL"`                  // Optional LAN base URL preferred by the capture tool
	ListenAddr              string           `json:"listenAddr"`              // HTTP listen address
	DownloadPath            string           `json:"downloadPath"`            // Root directory for recordings (one subdirectory per league)
	DatabasePath            string           `json:"databasePath"`            // SQLite database location
	LogLevel                string           `json:"logLevel"`                // DEBUG, INFO, WARN or ERROR
	ObfuscateUrls           bool             `json:"obfuscateUrls"`           // Obfuscate upstream URLs in logs
	UserAgent               string           `json:"userAgent"`               // Spoofed desktop user agent for all upstream requests
	ProviderTimeout         time.Duration    `json:"providerTimeout"`         // Hard cap per provider resolution attempt
	ProxyTimeout            time.Duration    `json:"proxyTimeout"`            // Upstream client timeout for the rewrite proxy
	MaxCaptureAttempts      int              `json:"maxCaptureAttempts"`      // Supervisor attempt bound; 0 means unbounded until the game is final
	HighQualityAttempts     int              `json:"highQualityAttempts"`     // Attempts restricted to providers with weight above 1
	CaptureRetryDelay       time.Duration    `json:"captureRetryDelay"`       // Backoff when a capture attempt produced no output file
	MinGameDuration         time.Duration    `json:"minGameDuration"`         // Recordings shorter than this are flagged as ended early
	ChannelWindow           time.Duration    `json:"channelWindow"`           // EPG slot width for channel allocation
	ScheduleRefreshInterval time.Duration    `json:"scheduleRefreshInterval"` // Interval between league schedule ingestions
	EpgRefreshInterval      time.Duration    `json:"epgRefreshInterval"`      // Interval between channel allocation passes
	PromoteInterval         time.Duration    `json:"promoteInterval"`         // Scheduler tick for promoting due recordings
	WorkerThreads           int              `json:"workerThreads"`           // Size of the supervisor worker pool
	PushbulletToken         string           `json:"pushbulletToken"`         // Push notification access token
	PlexURL                 string           `json:"plexURL"`                 // Plex server base URL for library refresh
	PlexToken               string           `json:"plexToken"`               // Plex access token
	JellyfinURL             string           `json:"jellyfinURL"`             // Jellyfin server base URL for library refresh
	JellyfinToken           string           `json:"jellyfinToken"`           // Jellyfin API token
	CfbDataToken            string           `json:"cfbDataToken"`            // collegefootballdata.com bearer token
	Providers               []ProviderConfig `json:"providers"`               // Per-provider overrides keyed by provider name
}

// ProviderConfig overrides the static descriptor of a single stream provider.
// Providers not listed here keep their built-in weight and enabled flag.
type ProviderConfig struct {
	Name    string `json:"name"`    // Provider name as registered
	Weight  int    `json:"weight"`  // Relative selection probability, must stay positive
	Enabled *bool  `json:"enabled"` // Overrides the built-in enabled flag when set
}

// ConfigFile mirrors Config for JSON marshaling; duration fields are strings
// (e.g. "5s", "4h") parsed into time.Duration values on load.
type ConfigFile struct {
	BaseURL                 string           `json:"baseURL"`
	LanURL                  string           `json:"lanURL"`
	ListenAddr              string           `json:"listenAddr"`
	DownloadPath            string           `json:"downloadPath"`
	DatabasePath            string           `json:"databasePath"`
	LogLevel                string           `json:"logLevel"`
	ObfuscateUrls           bool             `json:"obfuscateUrls"`
	UserAgent               string           `json:"userAgent"`
	ProviderTimeout         string           `json:"providerTimeout"`
	ProxyTimeout            string           `json:"proxyTimeout"`
	MaxCaptureAttempts      int              `json:"maxCaptureAttempts"`
	HighQualityAttempts     int              `json:"highQualityAttempts"`
	CaptureRetryDelay       string           `json:"captureRetryDelay"`
	MinGameDuration         string           `json:"minGameDuration"`
	ChannelWindow           string           `json:"channelWindow"`
	ScheduleRefreshInterval string           `json:"scheduleRefreshInterval"`
	EpgRefreshInterval      string           `json:"epgRefreshInterval"`
	PromoteInterval         string           `json:"promoteInterval"`
	WorkerThreads           int              `json:"workerThreads"`
	PushbulletToken         string           `json:"pushbulletToken"`
	PlexURL                 string           `json:"plexURL"`
	PlexToken               string           `json:"plexToken"`
	JellyfinURL             string           `json:"jellyfinURL"`
	JellyfinToken           string           `json:"jellyfinToken"`
	CfbDataToken            string           `json:"cfbDataToken"`
	Providers               []ProviderConfig `json:"providers"`
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36"

var (
	configCache *Config      // Cached configuration instance (singleton)
	configMutex sync.RWMutex // Mutex for safe concurrent access to configCache
)

// LoadConfig loads the configuration from file or returns the cached instance.
//
// Process:
//   - Uses double-checked locking to avoid redundant reloads.
//   - Attempts to load from GAMEDVR_CONFIG or /settings/config.json.
//   - Falls back to default config if the file is missing or invalid.
//   - Applies environment overrides for secrets, then validates defaults.
func LoadConfig() *Config {
	configMutex.RLock()
	if configCache != nil {
		defer configMutex.RUnlock()
		return configCache
	}
	configMutex.RUnlock()

	configMutex.Lock()
	defer configMutex.Unlock()

	// Double-check under write lock
	if configCache != nil {
		return configCache
	}

	configPath := os.Getenv("GAMEDVR_CONFIG")
	if configPath == "" {
		configPath = "/settings/config.json"
	}

	config, err := loadFromFile(configPath)
	if err != nil {
		log.Printf("Failed to load config from %s: %v", configPath, err)
		log.Printf("Falling back to default configuration...")
		config = getDefaultConfig()
	}

	applyEnvOverrides(config)
	validateAndSetDefaults(config)

	configCache = config
	return config
}

// loadFromFile reads and parses the configuration from a JSON file.
func loadFromFile(path string) (*Config, error) {

	// read from the file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// unmarshal the config file
	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// convert to our settings
	return convertFromFile(&configFile)
}

// convertFromFile converts a ConfigFile to Config,
// parsing duration strings into time.Duration.
func convertFromFile(cf *ConfigFile) (*Config, error) {
	config := &Config{
		BaseURL:             cf.BaseURL,
		LanURL:              cf.LanURL,
		ListenAddr:          cf.ListenAddr,
		DownloadPath:        cf.DownloadPath,
		DatabasePath:        cf.DatabasePath,
		LogLevel:            cf.LogLevel,
		ObfuscateUrls:       cf.ObfuscateUrls,
		UserAgent:           cf.UserAgent,
		MaxCaptureAttempts:  cf.MaxCaptureAttempts,
		HighQualityAttempts: cf.HighQualityAttempts,
		WorkerThreads:       cf.WorkerThreads,
		PushbulletToken:     cf.PushbulletToken,
		PlexURL:             cf.PlexURL,
		PlexToken:           cf.PlexToken,
		JellyfinURL:         cf.JellyfinURL,
		JellyfinToken:       cf.JellyfinToken,
		CfbDataToken:        cf.CfbDataToken,
		Providers:           cf.Providers,
	}

	// Parse duration fields; empty strings keep the zero value and are
	// replaced by validateAndSetDefaults later.
	durations := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{cf.ProviderTimeout, "providerTimeout", &config.ProviderTimeout},
		{cf.ProxyTimeout, "proxyTimeout", &config.ProxyTimeout},
		{cf.CaptureRetryDelay, "captureRetryDelay", &config.CaptureRetryDelay},
		{cf.MinGameDuration, "minGameDuration", &config.MinGameDuration},
		{cf.ChannelWindow, "channelWindow", &config.ChannelWindow},
		{cf.ScheduleRefreshInterval, "scheduleRefreshInterval", &config.ScheduleRefreshInterval},
		{cf.EpgRefreshInterval, "epgRefreshInterval", &config.EpgRefreshInterval},
		{cf.PromoteInterval, "promoteInterval", &config.PromoteInterval},
	}

	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	return config, nil
}

// applyEnvOverrides lets secrets be supplied through the environment instead
// of the config file, which keeps tokens out of mounted settings volumes.
func applyEnvOverrides(config *Config) {
	envs := []struct {
		key string
		dst *string
	}{
		{"GAMEDVR_PUSHBULLET_TOKEN", &config.PushbulletToken},
		{"GAMEDVR_PLEX_TOKEN", &config.PlexToken},
		{"GAMEDVR_JELLYFIN_TOKEN", &config.JellyfinToken},
		{"GAMEDVR_CFBDATA_TOKEN", &config.CfbDataToken},
	}
	for _, e := range envs {
		if v := os.Getenv(e.key); v != "" {
			*e.dst = v
		}
	}
}

// getDefaultConfig returns a baseline configuration
// with sensible defaults when no file is present.
func getDefaultConfig() *Config {
	return &Config{
		BaseURL:                 "http://localhost:8080",
		ListenAddr:              ":8080",
		DownloadPath:            "/downloads",
		DatabasePath:            "/settings/gamedvr.db",
		LogLevel:                "INFO",
		UserAgent:               defaultUserAgent,
		ProviderTimeout:         5 * time.Second,
		ProxyTimeout:            20 * time.Second,
		MaxCaptureAttempts:      100,
		HighQualityAttempts:     20,
		CaptureRetryDelay:       30 * time.Second,
		MinGameDuration:         2 * time.Hour,
		ChannelWindow:           4 * time.Hour,
		ScheduleRefreshInterval: 6 * time.Hour,
		EpgRefreshInterval:      time.Hour,
		PromoteInterval:         time.Minute,
		WorkerThreads:           8,
	}
}

// validateAndSetDefaults ensures all config values are valid,
// filling in defaults for missing/invalid ones.
func validateAndSetDefaults(config *Config) {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080"
	}
	if config.ListenAddr == "" {
		config.ListenAddr = ":8080"
	}
	if config.DownloadPath == "" {
		config.DownloadPath = "/downloads"
	}
	if config.DatabasePath == "" {
		config.DatabasePath = "/settings/gamedvr.db"
	}
	if config.LogLevel == "" {
		config.LogLevel = "INFO"
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	if config.ProviderTimeout <= 0 {
		config.ProviderTimeout = 5 * time.Second
	}
	if config.ProxyTimeout <= 0 {
		config.ProxyTimeout = 20 * time.Second
	}
	// MaxCaptureAttempts == 0 is a valid policy (unbounded until final),
	// only negative values are corrected.
	if config.MaxCaptureAttempts < 0 {
		config.MaxCaptureAttempts = 100
	}
	if config.HighQualityAttempts < 0 {
		config.HighQualityAttempts = 0
	}
	if config.CaptureRetryDelay <= 0 {
		config.CaptureRetryDelay = 30 * time.Second
	}
	if config.MinGameDuration <= 0 {
		config.MinGameDuration = 2 * time.Hour
	}
	if config.ChannelWindow <= 0 {
		config.ChannelWindow = 4 * time.Hour
	}
	if config.ScheduleRefreshInterval <= 0 {
		config.ScheduleRefreshInterval = 6 * time.Hour
	}
	if config.EpgRefreshInterval <= 0 {
		config.EpgRefreshInterval = time.Hour
	}
	if config.PromoteInterval <= 0 {
		config.PromoteInterval = time.Minute
	}
	if config.WorkerThreads <= 0 {
		config.WorkerThreads = 8
	}

	// Provider overrides with non-positive weights would break weighted
	// selection, clamp them back to the minimum.
	for i := range config.Providers {
		if config.Providers[i].Weight < 0 {
			config.Providers[i].Weight = 0
		}
	}
}

// RecordingURL returns the base URL the capture tool should use: the LAN
// domain when one is configured, otherwise the public domain.
func (c *Config) RecordingURL() string {
	if c.LanURL != "" {
		return c.LanURL
	}
	return c.BaseURL
}

// ProviderOverride returns the override entry for a provider name,
// or nil when the provider keeps its built-in descriptor.
func (c *Config) ProviderOverride(name string) *ProviderConfig {
	for i := range c.Providers {
		if c.Providers[i].Name == name {
			return &c.Providers[i]
		}
	}
	return nil
}

// CreateExampleConfig creates an example config file on disk.
func CreateExampleConfig(path string) error {
	example := ConfigFile{
		BaseURL:                 "https://dvr.example.com",
		LanURL:                  "http://192.168.1.10:8080",
		ListenAddr:              ":8080",
		DownloadPath:            "/downloads",
		DatabasePath:            "/settings/gamedvr.db",
		LogLevel:                "INFO",
		ObfuscateUrls:           true,
		ProviderTimeout:         "5s",
		ProxyTimeout:            "20s",
		MaxCaptureAttempts:      100,
		HighQualityAttempts:     20,
		CaptureRetryDelay:       "30s",
		MinGameDuration:         "2h",
		ChannelWindow:           "4h",
		ScheduleRefreshInterval: "6h",
		EpgRefreshInterval:      "1h",
		PromoteInterval:         "1m",
		WorkerThreads:           8,
		Providers: []ProviderConfig{
			{Name: "Streameast", Weight: 5},
		},
	}

	// setup the data properly
	data, err := json.MarshalIndent(example, "", "  ")
	if err != nil {
		return err
	}

	// write the config file
	return os.WriteFile(path, data, 0644)
}

// ClearConfigCache resets the configCache to nil.
// Forces a reload on the next LoadConfig() call.
func ClearConfigCache() {
	configMutex.Lock()
	defer configMutex.Unlock()
	configCache = nil
}

// ObfuscateURL masks sensitive parts of a URL for logging.
//
// Example:
//
//	Input:  "https://cdn.example.com/secret/stream.m3u8?token=abc"
//	Output: "https://cdn.example.com/***?***"
func ObfuscateURL(urlStr string) string {
	if urlStr == "" {
		return ""
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return "***OBFUSCATED***"
	}
	result := u.Scheme + "://" + u.Host
	if u.Path != "" && u.Path != "/" {
		result += "/***"
	}
	if u.RawQuery != "" {
		result += "?***"
	}
	if u.Fragment != "" {
		result += "#***"
	}
	return result
}

// LogURL returns either the original URL or an obfuscated version for logging
func (c *Config) LogURL(url string) string {
	if c.ObfuscateUrls {
		return ObfuscateURL(url)
	}
	return url
}
