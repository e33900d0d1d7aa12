package feed

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Default source settings applied when a YAML file leaves them out.
const (
	DefaultImagePrefix     = "news/images"
	DefaultAudioPrefix     = "news/tts"
	DefaultRefreshInterval = 600
	DefaultTimeout         = 30
	DefaultRecentLimit     = 200
	DefaultOlderLimit      = 200
)

var validSourceName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

type ConfigCache struct {
	sourcesDir string
	cache      map[string]*Config
	mu         sync.RWMutex
}

func NewConfigCache(sourcesDir string) *ConfigCache {
	return &ConfigCache{
		sourcesDir: sourcesDir,
		cache:      make(map[string]*Config),
	}
}

func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.sourcesDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.sourcesDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		fileName := filepath.Base(file)
		sourceName := strings.TrimSuffix(fileName, ".yml")

		config, err := cc.LoadConfig(sourceName)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Configuration loaded", "source", sourceName, "enabled", config.Settings.Enabled, "refresh_interval", config.Settings.RefreshInterval)
	}

	return nil
}

func (cc *ConfigCache) LoadConfig(sourceName string) (*Config, error) {
	if !validSourceName.MatchString(sourceName) {
		return nil, fmt.Errorf("invalid source name '%s'", sourceName)
	}

	configFile := cc.getConfigFilePath(sourceName)
	sourceConfig, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	sourceConfig.Name = sourceName

	if err := cc.validateConfig(sourceConfig); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[sourceConfig.Name] = sourceConfig

	return sourceConfig, nil
}

func (cc *ConfigCache) GetConfig(sourceName string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	sourceConfig, ok := cc.cache[sourceName]
	if !ok {
		return nil, fmt.Errorf("source config with name '%s' not found", sourceName)
	}
	return sourceConfig, nil
}

func (cc *ConfigCache) GetConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configsCopy := make(map[string]*Config, len(cc.cache))
	for k, v := range cc.cache {
		configsCopy[k] = v
	}
	return configsCopy
}

func (cc *ConfigCache) GetEnabledConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	enabledConfigs := make(map[string]*Config)
	for k, v := range cc.cache {
		if v.Settings.Enabled {
			enabledConfigs[k] = v
		}
	}
	return enabledConfigs
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var sourceConfig Config
	if err := yaml.Unmarshal(data, &sourceConfig); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if sourceConfig.Assets.ImagePrefix == "" {
		sourceConfig.Assets.ImagePrefix = DefaultImagePrefix
	}
	if sourceConfig.Assets.AudioPrefix == "" {
		sourceConfig.Assets.AudioPrefix = DefaultAudioPrefix
	}
	if sourceConfig.Settings.RefreshInterval == 0 {
		sourceConfig.Settings.RefreshInterval = DefaultRefreshInterval
	}
	if sourceConfig.Settings.Timeout == 0 {
		sourceConfig.Settings.Timeout = DefaultTimeout
	}
	if sourceConfig.Settings.RecentLimit == 0 {
		sourceConfig.Settings.RecentLimit = DefaultRecentLimit
	}
	if sourceConfig.Settings.OlderLimit == 0 {
		sourceConfig.Settings.OlderLimit = DefaultOlderLimit
	}

	return &sourceConfig, nil
}

func (cc *ConfigCache) validateConfig(sourceConfig *Config) error {
	if sourceConfig == nil {
		return fmt.Errorf("sourceConfig is nil")
	}

	requiredFields := map[string]string{
		"source name":     sourceConfig.Name,
		"feed URL":        sourceConfig.FeedURL,
		"assets base URL": sourceConfig.Assets.BaseURL,
	}

	for fieldName, fieldValue := range requiredFields {
		if fieldValue == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
	}

	urlFields := map[string]string{
		"feed URL":        sourceConfig.FeedURL,
		"search URL":      sourceConfig.SearchURL,
		"assets base URL": sourceConfig.Assets.BaseURL,
	}

	for fieldName, fieldValue := range urlFields {
		if fieldValue == "" {
			continue
		}
		u, err := url.Parse(fieldValue)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s must be an absolute http(s) URL", fieldName)
		}
	}

	positiveFields := map[string]int{
		"refresh interval": sourceConfig.Settings.RefreshInterval,
		"timeout":          sourceConfig.Settings.Timeout,
	}

	for fieldName, fieldValue := range positiveFields {
		if fieldValue <= 0 {
			return fmt.Errorf("%s must be positive", fieldName)
		}
	}

	// A negative limit disables the cut.
	limitFields := map[string]int{
		"recent limit": sourceConfig.Settings.RecentLimit,
		"older limit":  sourceConfig.Settings.OlderLimit,
	}

	for fieldName, fieldValue := range limitFields {
		if fieldValue < -1 {
			return fmt.Errorf("%s must be -1 (unlimited) or greater", fieldName)
		}
	}

	validFields := map[string]bool{
		"title":    true,
		"summary":  true,
		"keywords": true,
	}

	for i, filter := range sourceConfig.Filters {
		if !validFields[filter.Field] {
			return fmt.Errorf("invalid filter field at index %d: %s", i, filter.Field)
		}
		if len(filter.Includes) == 0 && len(filter.Excludes) == 0 {
			return fmt.Errorf("filter at index %d must have at least one include or exclude rule", i)
		}
	}

	return nil
}

func (cc *ConfigCache) getConfigFilePath(sourceName string) string {
	return filepath.Join(cc.sourcesDir, sourceName+".yml")
}
