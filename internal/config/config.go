package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"diagdesk/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Backend    BackendConfig    `yaml:"backend"`
	Storage    StorageConfig    `yaml:"storage"`
	Redis      RedisConfig      `yaml:"redis"`
	Booking    BookingConfig    `yaml:"booking"`
	API        APIConfig        `yaml:"api"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Bot        BotConfig        `yaml:"bot"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Logging    LoggingConfig    `yaml:"logging"`
	Google     GoogleConfig     `yaml:"google"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// BackendConfig points at the clinic backend every data call goes to.
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`
	// TimeoutSeconds of 0 means no client timeout; calls end with their context.
	TimeoutSeconds int `yaml:"timeout_seconds"`
	// LabReportURL is a template with one %s for the URL-escaped TestID.
	LabReportURL string `yaml:"lab_report_url"`
}

type StorageConfig struct {
	// Driver is one of memory, sqlite, redis.
	Driver     string `yaml:"driver"`
	SQLitePath string `yaml:"sqlite_path"`
	KeyPrefix  string `yaml:"key_prefix"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BookingConfig struct {
	SettleDelayMS int `yaml:"settle_delay_ms"`
	CloseDelayMS  int `yaml:"close_delay_ms"`
	PageSize      int `yaml:"page_size"`
}

func (c BookingConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMS) * time.Millisecond
}

func (c BookingConfig) CloseDelay() time.Duration {
	return time.Duration(c.CloseDelayMS) * time.Millisecond
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// APIGRPCConfig configures the gRPC health endpoint served next to the HTTP facade.
type APIGRPCConfig struct {
	Enabled    bool `yaml:"enabled"`
	Port       int  `yaml:"port"`
	Reflection bool `yaml:"reflection"`
}

type APIAuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret"`
	TokenTTLHours int    `yaml:"token_ttl_hours"`
	Issuer        string `yaml:"issuer"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

type BotConfig struct {
	PaginationSize    int     `yaml:"pagination_size"`
	RateLimitMessages int     `yaml:"rate_limit_messages"`
	RateLimitWindow   int     `yaml:"rate_limit_window"`
	Staff             []int64 `yaml:"staff"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
	HealthCheckPort   int  `yaml:"health_check_port"`
}

type TracingConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	SpreadsheetID   string `yaml:"spreadsheet_id"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

// Load reads the YAML file at configPath, expanding ${VAR} references from
// the environment and an optional .env file.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse decodes, defaults and validates raw YAML.
func Parse(data []byte) (*Config, error) {
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return errors.New("backend base_url is required")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend base_url %q is not an absolute URL", c.Backend.BaseURL)
	}
	if c.Backend.TimeoutSeconds < 0 {
		return errors.New("backend timeout_seconds must not be negative")
	}
	if t := c.Backend.LabReportURL; t != "" && !validReportTemplate(t) {
		return fmt.Errorf("backend lab_report_url %q must contain exactly one %%s and no other verbs", t)
	}

	switch c.Storage.Driver {
	case "memory", "redis":
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.driver=sqlite requires storage.sqlite_path")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "redis" && c.Redis.Address == "" {
		return errors.New("storage.driver=redis requires redis.address")
	}

	if c.Booking.SettleDelayMS < 0 || c.Booking.CloseDelayMS < 0 {
		return errors.New("booking delays must not be negative")
	}

	if c.API.Enabled && strings.TrimSpace(c.API.Auth.JWTSecret) == "" {
		return errors.New("api.auth.jwt_secret is required when the API is enabled")
	}

	return nil
}

func validReportTemplate(t string) bool {
	verbs := strings.ReplaceAll(t, "%%", "")
	return strings.Count(verbs, "%") == 1 && strings.Count(verbs, "%s") == 1
}

// ValidateBot checks the settings only the Telegram front end needs.
func (c *Config) ValidateBot() error {
	if c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		return errors.New("telegram bot token is required")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "diagdesk"
	}
	if c.Backend.LabReportURL == "" {
		c.Backend.LabReportURL = "https://itd.oncquest.net/Oncquest/Design/Lab/GetReportnew.aspx?TestID=%s&RoleName=&ReportType=0"
	}
	c.Backend.BaseURL = strings.TrimRight(c.Backend.BaseURL, "/")

	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}

	if c.Booking.SettleDelayMS == 0 {
		c.Booking.SettleDelayMS = models.DefaultSettleDelayMS
	}
	if c.Booking.CloseDelayMS == 0 {
		c.Booking.CloseDelayMS = models.DefaultCloseDelayMS
	}
	if c.Booking.PageSize == 0 {
		c.Booking.PageSize = models.DefaultPageSize
	}

	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.TokenTTLHours == 0 {
		c.API.Auth.TokenTTLHours = 12
	}
	if c.API.Auth.Issuer == "" {
		c.API.Auth.Issuer = c.App.Name
	}

	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Bot.PaginationSize == 0 {
		c.Bot.PaginationSize = models.DefaultPageSize
	}
	if c.Bot.RateLimitMessages == 0 {
		c.Bot.RateLimitMessages = models.RateLimitMessages
	}
	if c.Bot.RateLimitWindow == 0 {
		c.Bot.RateLimitWindow = models.RateLimitWindow
	}

	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
