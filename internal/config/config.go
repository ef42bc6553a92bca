package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Roblox  RobloxConfig  `mapstructure:"roblox"`
	Discord DiscordConfig `mapstructure:"discord"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Scan    ScanConfig    `mapstructure:"scan"`
	Dedup   DedupConfig   `mapstructure:"dedup"`
	Status  StatusConfig  `mapstructure:"status"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// RobloxConfig holds Roblox platform API configuration
type RobloxConfig struct {
	Cookie              string        `mapstructure:"cookie"`
	GroupID             int64         `mapstructure:"group_id"`
	UsersAPIURL         string        `mapstructure:"users_api_url"`
	GroupsAPIURL        string        `mapstructure:"groups_api_url"`
	EconomyAPIURL       string        `mapstructure:"economy_api_url"`
	InventoryAPIURL     string        `mapstructure:"inventory_api_url"`
	ThumbnailsAPIURL    string        `mapstructure:"thumbnails_api_url"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	Categories          []string      `mapstructure:"categories"`
	InventoryCategories []string      `mapstructure:"inventory_categories"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxRetries          int           `mapstructure:"max_retries"`
	RetryDelayBase      time.Duration `mapstructure:"retry_delay_base"`
	PageLimit           int           `mapstructure:"page_limit"`
}

// DiscordConfig holds Discord webhook notification configuration
type DiscordConfig struct {
	WebhookURL     string        `mapstructure:"webhook_url"`
	Username       string        `mapstructure:"username"`
	AvatarURL      string        `mapstructure:"avatar_url"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// CatalogConfig holds product catalog configuration
type CatalogConfig struct {
	Path            string        `mapstructure:"path"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// ScanConfig holds initial member scan configuration
type ScanConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MemberDelay time.Duration `mapstructure:"member_delay"`
}

// DedupConfig holds transaction dedup store configuration
type DedupConfig struct {
	Capacity           int    `mapstructure:"capacity"`
	DBPath             string `mapstructure:"db_path"`
	CheckpointInterval int    `mapstructure:"checkpoint_interval"`
}

// StatusConfig holds the status HTTP server and report configuration
type StatusConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ListenAddr     string        `mapstructure:"listen_addr"`
	ReportInterval time.Duration `mapstructure:"report_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	setDefaults(v)

	// Secrets (cookie, webhook URL) are expected via RANK_SYSTEM_* env vars
	v.SetEnvPrefix("RANK_SYSTEM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Roblox defaults
	v.SetDefault("roblox.users_api_url", "https://users.roblox.com")
	v.SetDefault("roblox.groups_api_url", "https://groups.roblox.com")
	v.SetDefault("roblox.economy_api_url", "https://economy.roblox.com")
	v.SetDefault("roblox.inventory_api_url", "https://inventory.roblox.com")
	v.SetDefault("roblox.thumbnails_api_url", "https://thumbnails.roblox.com")
	v.SetDefault("roblox.poll_interval", "60s")
	v.SetDefault("roblox.categories", []string{"GamePass", "Asset"})
	v.SetDefault("roblox.inventory_categories", []string{"GamePass"})
	v.SetDefault("roblox.timeout", "30s")
	v.SetDefault("roblox.max_retries", 3)
	v.SetDefault("roblox.retry_delay_base", "1s")
	v.SetDefault("roblox.page_limit", 100)

	// Discord defaults
	v.SetDefault("discord.enabled", true)
	v.SetDefault("discord.username", "Transaction Monitor")
	v.SetDefault("discord.avatar_url", "https://cdn.discordapp.com/embed/avatars/0.png")
	v.SetDefault("discord.max_retries", 3)
	v.SetDefault("discord.retry_delay_base", "1s")

	// Catalog defaults
	v.SetDefault("catalog.path", "configs/products.yaml")
	v.SetDefault("catalog.refresh_interval", "0s")

	// Scan defaults
	v.SetDefault("scan.enabled", true)
	v.SetDefault("scan.member_delay", "1s")

	// Dedup defaults
	v.SetDefault("dedup.capacity", 2000)
	v.SetDefault("dedup.db_path", "")
	v.SetDefault("dedup.checkpoint_interval", 10)

	// Status defaults
	v.SetDefault("status.enabled", false)
	v.SetDefault("status.listen_addr", ":8080")
	v.SetDefault("status.report_interval", "10m")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Roblox config
	if c.Roblox.Cookie == "" {
		return fmt.Errorf("roblox.cookie is required (set RANK_SYSTEM_ROBLOX_COOKIE)")
	}
	if c.Roblox.GroupID <= 0 {
		return fmt.Errorf("roblox.group_id is required and must be positive")
	}
	if c.Roblox.UsersAPIURL == "" || c.Roblox.GroupsAPIURL == "" ||
		c.Roblox.EconomyAPIURL == "" || c.Roblox.InventoryAPIURL == "" ||
		c.Roblox.ThumbnailsAPIURL == "" {
		return fmt.Errorf("all roblox API base URLs are required")
	}
	if c.Roblox.PollInterval < 10*time.Second {
		return fmt.Errorf("roblox.poll_interval must be at least 10 seconds")
	}
	if len(c.Roblox.Categories) == 0 {
		return fmt.Errorf("roblox.categories must contain at least one category")
	}
	if len(c.Roblox.InventoryCategories) == 0 {
		return fmt.Errorf("roblox.inventory_categories must contain at least one category")
	}
	if c.Roblox.Timeout <= 0 {
		return fmt.Errorf("roblox.timeout must be positive")
	}
	if c.Roblox.PageLimit < 10 || c.Roblox.PageLimit > 100 {
		return fmt.Errorf("roblox.page_limit must be between 10 and 100")
	}

	// Validate Discord config
	if c.Discord.Enabled && c.Discord.WebhookURL == "" {
		return fmt.Errorf("discord.webhook_url is required when discord is enabled (set RANK_SYSTEM_DISCORD_WEBHOOK_URL)")
	}

	// Validate Catalog config
	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog.path is required")
	}
	if c.Catalog.RefreshInterval != 0 && c.Catalog.RefreshInterval < time.Minute {
		return fmt.Errorf("catalog.refresh_interval must be zero (disabled) or at least 1 minute")
	}

	// Validate Scan config
	if c.Scan.MemberDelay < 0 {
		return fmt.Errorf("scan.member_delay must not be negative")
	}

	// Validate Dedup config
	if c.Dedup.Capacity < 1 {
		return fmt.Errorf("dedup.capacity must be at least 1")
	}
	if c.Dedup.CheckpointInterval < 1 {
		return fmt.Errorf("dedup.checkpoint_interval must be at least 1")
	}

	// Validate Status config
	if c.Status.Enabled && c.Status.ListenAddr == "" {
		return fmt.Errorf("status.listen_addr is required when status server is enabled")
	}
	if c.Status.ReportInterval < time.Minute {
		return fmt.Errorf("status.report_interval must be at least 1 minute")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
