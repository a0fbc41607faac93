package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/CTAG07/sdxstore/pkg/store"
	"github.com/CTAG07/sdxstore/pkg/templating"
	"github.com/natefinch/atomic"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds the configuration for the HTTP server and its storage.
type ServerConfig struct {
	ServerAddr     string   `json:"server_addr" yaml:"server_addr"`
	LogLevel       string   `json:"log_level" yaml:"log_level"`
	TrustedProxies []string `json:"trusted_proxies" yaml:"trusted_proxies"`
	DataDir        string   `json:"data_dir" yaml:"data_dir"`
	DatabasePath   string   `json:"database_path" yaml:"database_path"`
}

// StoreConfig holds settings for the response store.
type StoreConfig struct {
	// Compression is one of "none", "lz4" or "zstd". It only applies to
	// newly stored responses and takes effect on restart.
	Compression      string `json:"compression" yaml:"compression"`
	MaxResponseBytes int64  `json:"max_response_bytes" yaml:"max_response_bytes"`
	MaxImportBytes   int64  `json:"max_import_bytes" yaml:"max_import_bytes"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server    *ServerConfig              `json:"server_config" yaml:"server_config"`
	Templates *templating.TemplateConfig `json:"template_config" yaml:"template_config"`
	Store     *StoreConfig               `json:"store_config" yaml:"store_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ServerAddr:     ":7280",
		LogLevel:       "info",
		TrustedProxies: []string{},
		DataDir:        "./data",
		DatabasePath:   "./data/sdxstore.db",
	}
}

// DefaultStoreConfig creates a store configuration with default values.
func DefaultStoreConfig() *StoreConfig {
	return &StoreConfig{
		Compression:      store.CompressionZstd.String(),
		MaxResponseBytes: 10 << 20,
		MaxImportBytes:   1 << 30,
	}
}

// DefaultConfig returns a complete configuration with every section set
// to its defaults.
func DefaultConfig() *Config {
	templates := templating.DefaultConfig()
	return &Config{
		Server:    DefaultServerConfig(),
		Templates: &templates,
		Store:     DefaultStoreConfig(),
	}
}

// isYAML reports whether a config path should be read and written as YAML.
// Everything else is JSON, which may carry comments and trailing commas.
func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func marshalConfig(path string, config *Config) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(config)
	}
	return json.MarshalIndent(config, "", "  ")
}

func unmarshalConfig(path string, data []byte, config *Config) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, config)
	}
	return json.Unmarshal(jsonc.ToJSON(data), config)
}

// fillDefaults replaces sections left out of a config file with defaults.
func (c *Config) fillDefaults() {
	defaults := DefaultConfig()
	if c.Server == nil {
		c.Server = defaults.Server
	}
	if c.Templates == nil {
		c.Templates = defaults.Templates
	}
	if c.Store == nil {
		c.Store = defaults.Store
	}
}

// validate checks the values that would otherwise fail later, at a worse time.
func (c *Config) validate() error {
	if _, err := store.ParseCompression(c.Store.Compression); err != nil {
		return fmt.Errorf("store_config.compression: %w", err)
	}
	if c.Server.ServerAddr == "" {
		return fmt.Errorf("server_config.server_addr must not be empty")
	}
	return nil
}

// LoadConfig reads the configuration from the file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	// Initialize with default configurations
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		// If the file doesn't exist, create it with the default config.
		if os.IsNotExist(err) {
			var data []byte
			data, err = marshalConfig(path, config)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// Log a warning instead of failing, as the server can still run with defaults.
				fmt.Printf("warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		// For other errors (e.g., permission denied), return the error.
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = unmarshalConfig(path, file, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.fillDefaults()
	if err = config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return config, nil
}

// ConfigManager handles thread-safe access to configuration and derived state (trusted proxies).
type ConfigManager struct {
	config       *Config
	mu           sync.RWMutex
	trustedCIDRs []*net.IPNet
	trustedIPs   []net.IP
	configPath   string
	logger       *slog.Logger
	tm           *templating.TemplateManager
}

// NewConfigManager loads the config and initializes the manager.
func NewConfigManager(path string) (*ConfigManager, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	cm := &ConfigManager{
		config:     cfg,
		configPath: path,
		// Log to stdout before the application-specific logger is set.
		logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{})),
	}
	cm.refreshCache()

	return cm, nil
}

// SetTemplateManager registers the template manager to receive config updates.
func (cm *ConfigManager) SetTemplateManager(tm *templating.TemplateManager) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.tm = tm
	if tm != nil {
		tm.SetConfig(cm.config.Templates)
	}
}

// SetLogger sets the logger.
func (cm *ConfigManager) SetLogger(logger *slog.Logger) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.logger = logger
}

// Get returns a copy of the current configuration.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return *cm.config
}

// Update validates the configuration, applies the template settings, saves
// it to disk, and refreshes derived state.
func (cm *ConfigManager) Update(newConfig Config) error {
	newConfig.fillDefaults()
	if err := newConfig.validate(); err != nil {
		return err
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.tm != nil {
		oldTmplConfig := cm.config.Templates

		cm.tm.SetConfig(newConfig.Templates)
		if err := cm.tm.Refresh(); err != nil {
			cm.tm.SetConfig(oldTmplConfig)
			_ = cm.tm.Refresh()
			return fmt.Errorf("template configuration rejected: %w", err)
		}
	}

	*cm.config = newConfig
	cm.refreshCache()

	data, err := marshalConfig(cm.configPath, cm.config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := atomic.WriteFile(cm.configPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// IsTrusted checks if an IP is in the trusted proxies list using the cache.
func (cm *ConfigManager) IsTrusted(ipAddr string) bool {
	parsedIP := net.ParseIP(ipAddr)
	if parsedIP == nil {
		return false
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()

	for _, ipNet := range cm.trustedCIDRs {
		if ipNet.Contains(parsedIP) {
			return true
		}
	}

	for _, trustedIP := range cm.trustedIPs {
		if trustedIP.Equal(parsedIP) {
			return true
		}
	}

	return false
}

// refreshCache rebuilds the binary IP lists from the config strings.
// Callers hold cm.mu.
func (cm *ConfigManager) refreshCache() {
	var cidrs []*net.IPNet
	var ips []net.IP

	for _, t := range cm.config.Server.TrustedProxies {
		if strings.Contains(t, "/") {
			_, ipNet, err := net.ParseCIDR(t)
			if err == nil {
				cidrs = append(cidrs, ipNet)
			} else {
				cm.logger.Warn("Failed to parse trusted proxy CIDR", "cidr", t, "error", err)
			}
		} else {
			ip := net.ParseIP(t)
			if ip != nil {
				ips = append(ips, ip)
			} else {
				cm.logger.Warn("Failed to parse trusted proxy IP", "ip", t)
			}
		}
	}
	cm.trustedCIDRs = cidrs
	cm.trustedIPs = ips
}
