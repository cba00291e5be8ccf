package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	YouTube    YouTubeConfig    `yaml:"youtube"`
	AI         AIConfig         `yaml:"ai"`
	Audit      AuditConfig      `yaml:"audit"`
	Update     UpdateConfig     `yaml:"update"`
	Storage    StorageConfig    `yaml:"storage"`
	Email      EmailConfig      `yaml:"email"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Schedule   string           `yaml:"schedule"`
}

type YouTubeConfig struct {
	ClientID     string `yaml:"client_id" env:"GOOGLE_CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" env:"GOOGLE_CLIENT_SECRET"`
	TokenFile    string `yaml:"token_file"`
	ChannelID    string `yaml:"channel_id" env:"YOUTUBE_CHANNEL_ID"`
}

type AIConfig struct {
	GeminiAPIKey          string `yaml:"gemini_api_key" env:"GEMINI_API_KEY"`
	Model                 string `yaml:"model"`
	StyleTemplateFile     string `yaml:"style_template_file"`
	StyleTemplateMaxChars int    `yaml:"style_template_max_chars"`
	TopVideos             int    `yaml:"top_videos"`
}

type AuditConfig struct {
	MinDescriptionLength int    `yaml:"min_description_length"`
	MusicCategoryID      string `yaml:"music_category_id"`
	CreatedBy            string `yaml:"created_by"`
}

type UpdateConfig struct {
	Mode string `yaml:"mode"`
	// ProtectMainHeuristic keeps heuristic rewrites away from the
	// title/description of non-Shorts uploads. Surfaced as configuration
	// rather than hard-coded because the rule deliberately drops flagged
	// description fixes for long-form videos.
	ProtectMainHeuristic *bool `yaml:"protect_main_heuristic"`
}

type StorageConfig struct {
	DatabaseFile string `yaml:"database_file"`
}

type EmailConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SMTPServer string `yaml:"smtp_server"`
	SMTPPort   int    `yaml:"smtp_port"`
	Username   string `yaml:"username" env:"EMAIL_USERNAME"`
	Password   string `yaml:"password" env:"EMAIL_PASSWORD"`
	FromEmail  string `yaml:"from_email"`
	ToEmail    string `yaml:"to_email"`
}

type DashboardConfig struct {
	Port string `yaml:"port"`
}

type MonitoringConfig struct {
	HealthPort int `yaml:"health_port"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = "config.yaml"
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configFile, err)
	}

	cfg.applyEnvFallbacks()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyEnvFallbacks() {
	if c.YouTube.ClientID == "" {
		c.YouTube.ClientID = os.Getenv("GOOGLE_CLIENT_ID")
	}
	if c.YouTube.ClientSecret == "" {
		c.YouTube.ClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	}
	if c.YouTube.ChannelID == "" {
		c.YouTube.ChannelID = os.Getenv("YOUTUBE_CHANNEL_ID")
	}
	if c.AI.GeminiAPIKey == "" {
		c.AI.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.Email.Username == "" {
		c.Email.Username = os.Getenv("EMAIL_USERNAME")
	}
	if c.Email.Password == "" {
		c.Email.Password = os.Getenv("EMAIL_PASSWORD")
	}
}

func (c *Config) applyDefaults() {
	if c.YouTube.TokenFile == "" {
		c.YouTube.TokenFile = "youtube_token.json"
	}
	if c.AI.Model == "" {
		c.AI.Model = "gemini-2.5-flash"
	}
	if c.AI.StyleTemplateMaxChars == 0 {
		c.AI.StyleTemplateMaxChars = 4000
	}
	if c.AI.TopVideos == 0 {
		c.AI.TopVideos = 10
	}
	if c.Audit.MinDescriptionLength == 0 {
		c.Audit.MinDescriptionLength = 120
	}
	if c.Audit.MusicCategoryID == "" {
		c.Audit.MusicCategoryID = "10"
	}
	if c.Audit.CreatedBy == "" {
		c.Audit.CreatedBy = "seo-agent"
	}
	if c.Update.Mode == "" {
		c.Update.Mode = "target_and_heuristic"
	}
	if c.Update.ProtectMainHeuristic == nil {
		protect := true
		c.Update.ProtectMainHeuristic = &protect
	}
	if c.Storage.DatabaseFile == "" {
		c.Storage.DatabaseFile = "data/seo_agent.db"
	}
	if c.Dashboard.Port == "" {
		c.Dashboard.Port = "8090"
	}
	if c.Monitoring.HealthPort == 0 {
		c.Monitoring.HealthPort = 8080
	}
	if c.Schedule == "" {
		c.Schedule = "0 0 9 * * *" // Daily at 9 AM (cron with seconds field)
	}
}

func (c *Config) validate() error {
	if c.YouTube.ClientID == "" {
		return fmt.Errorf("YouTube client ID is required (set GOOGLE_CLIENT_ID or youtube.client_id)")
	}
	if c.YouTube.ClientSecret == "" {
		return fmt.Errorf("YouTube client secret is required (set GOOGLE_CLIENT_SECRET or youtube.client_secret)")
	}
	if c.YouTube.ChannelID == "" {
		return fmt.Errorf("YouTube channel ID is required (set YOUTUBE_CHANNEL_ID or youtube.channel_id)")
	}
	if c.Update.Mode != "target_only" && c.Update.Mode != "target_and_heuristic" {
		return fmt.Errorf("invalid update mode %q (want target_only or target_and_heuristic)", c.Update.Mode)
	}
	if c.Email.Enabled {
		if c.Email.Username == "" {
			return fmt.Errorf("Email username is required (set EMAIL_USERNAME or email.username)")
		}
		if c.Email.Password == "" {
			return fmt.Errorf("Email password is required (set EMAIL_PASSWORD or email.password)")
		}
	}
	return nil
}

// ProtectMain returns the effective main-video protection flag.
func (c *Config) ProtectMain() bool {
	return c.Update.ProtectMainHeuristic == nil || *c.Update.ProtectMainHeuristic
}
