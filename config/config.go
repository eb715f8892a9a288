// Package config loads application configuration from environment variables,
// with per-course overrides merged in from the spreadsheet's Environment tab
// so course staff can tune policy thresholds without a redeploy.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cs161-staff/extensions/pkg/timeutil"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds all application configuration.
type Config struct {
	// Application
	App AppConfig

	// HTTP server
	Server ServerConfig

	// Spreadsheet backend
	Sheets SheetsConfig

	// Optional Postgres roster mirror / audit log
	Database DatabaseConfig

	// Optional Redis dedupe guard
	Redis RedisConfig

	// Slack notifications
	Slack SlackConfig

	// Outbound email
	Email EmailConfig

	// Gradescope integration
	Gradescope GradescopeConfig

	// Approval policy thresholds
	Policy PolicyConfig
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string
	Environment Environment
	Debug       bool
	Version     string

	// Timezone is the course's home timezone for deadlines and timestamps.
	Timezone string
	Location *time.Location

	// CourseFile points at a YAML course file for offline/dry-run mode.
	// Empty means the spreadsheet is the source of truth.
	CourseFile string

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string
	Port int

	// SecretHash is the bcrypt hash of the shared webhook secret.
	SecretHash string
}

// SheetsConfig holds the spreadsheet backend settings.
type SheetsConfig struct {
	// SpreadsheetID identifies the course spreadsheet in the Sheets API.
	SpreadsheetID string

	// SpreadsheetURL is the human-facing link used in notifications.
	SpreadsheetURL string

	// AccessToken is the service account's OAuth2 bearer token.
	AccessToken string

	Timeout time.Duration
}

// DatabaseConfig holds the optional Postgres settings.
type DatabaseConfig struct {
	// URL is the connection string. Empty disables Postgres entirely.
	URL string

	// UseAsRoster serves the roster from Postgres instead of Sheets.
	UseAsRoster bool
}

// RedisConfig holds the optional Redis dedupe settings.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MarkerTTL is how long a processed submission is remembered.
	MarkerTTL time.Duration

	// Disabled turns the dedupe guard off.
	Disabled bool
}

// SlackConfig holds notification settings.
type SlackConfig struct {
	// WebhookURL is the incoming webhook endpoint.
	WebhookURL string

	// ReviewerTags are optional @-mention tags prepended to review requests.
	ReviewerTags []string

	Timeout time.Duration
}

// EmailConfig holds outbound email settings.
type EmailConfig struct {
	// Endpoint is the mail API URL.
	Endpoint string

	// MasterSecret authenticates the client against the mail API.
	MasterSecret string

	From      string
	ReplyTo   string
	CC        []string
	Subject   string
	Signature string

	Timeout time.Duration
}

// GradescopeConfig holds extension-application settings.
type GradescopeConfig struct {
	// Enabled turns external extension application on.
	Enabled bool

	Email    string
	Password string
	Timeout  time.Duration
}

// PolicyConfig holds the approval thresholds. Values <= 0 (or -1 for the
// total cap) disable the corresponding check; see the policy package.
type PolicyConfig struct {
	AutoApproveThreshold           int
	AutoApproveThresholdDSP        int
	AutoApproveAssignmentThreshold int
	MaxTotalRequestedExtensions    int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	app := loadAppConfig()

	cfg := &Config{
		App: app,
		Server: ServerConfig{
			Host:       getEnv("SERVER_HOST", "0.0.0.0"),
			Port:       getEnvInt("SERVER_PORT", 8080),
			SecretHash: getEnv("APP_SECRET_HASH", ""),
		},
		Sheets: SheetsConfig{
			SpreadsheetID:  getEnv("SPREADSHEET_ID", ""),
			SpreadsheetURL: getEnv("SPREADSHEET_URL", ""),
			AccessToken:    getEnv("SHEETS_ACCESS_TOKEN", ""),
			Timeout:        getEnvDuration("SHEETS_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:         getEnv("DATABASE_URL", ""),
			UseAsRoster: getEnvBool("DATABASE_USE_AS_ROSTER", false),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			MarkerTTL:    getEnvDuration("REDIS_MARKER_TTL", time.Hour),
			Disabled:     getEnvBool("REDIS_DISABLED", false),
		},
		Slack: SlackConfig{
			WebhookURL:   getEnv("SLACK_ENDPOINT", ""),
			ReviewerTags: getEnvSlice("SLACK_TAG_LIST", nil),
			Timeout:      getEnvDuration("SLACK_TIMEOUT", 15*time.Second),
		},
		Email: EmailConfig{
			Endpoint:     getEnv("EMAIL_ENDPOINT", ""),
			MasterSecret: getEnv("APP_MASTER_SECRET", ""),
			From:         getEnv("EMAIL_FROM", ""),
			ReplyTo:      getEnv("EMAIL_REPLY_TO", ""),
			CC:           getEnvSlice("EMAIL_CC", nil),
			Subject:      getEnv("EMAIL_SUBJECT", ""),
			Signature:    getEnv("EMAIL_SIGNATURE", ""),
			Timeout:      getEnvDuration("EMAIL_TIMEOUT", 30*time.Second),
		},
		Gradescope: GradescopeConfig{
			Enabled:  getEnvBool("EXTEND_GRADESCOPE_ASSIGNMENTS", false),
			Email:    getEnv("GRADESCOPE_EMAIL", ""),
			Password: getEnv("GRADESCOPE_PASSWORD", ""),
			Timeout:  getEnvDuration("GRADESCOPE_TIMEOUT", 60*time.Second),
		},
		Policy: PolicyConfig{
			AutoApproveThreshold:           getEnvInt("AUTO_APPROVE_THRESHOLD", 3),
			AutoApproveThresholdDSP:        getEnvInt("AUTO_APPROVE_THRESHOLD_DSP", 7),
			AutoApproveAssignmentThreshold: getEnvInt("AUTO_APPROVE_ASSIGNMENT_THRESHOLD", 0),
			MaxTotalRequestedExtensions:    getEnvInt("MAX_TOTAL_REQUESTED_EXTENSIONS_THRESHOLD", -1),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadAppConfig() AppConfig {
	env := Environment(getEnv("APP_ENV", "development"))
	timezone := getEnv("APP_TIMEZONE", timeutil.DefaultTimezone)

	return AppConfig{
		Name:            getEnv("APP_NAME", "extensions"),
		Environment:     env,
		Debug:           env == EnvDevelopment || getEnvBool("APP_DEBUG", false),
		Version:         getEnv("APP_VERSION", "0.1.0"),
		Timezone:        timezone,
		Location:        timeutil.CourseLocation(timezone),
		CourseFile:      getEnv("COURSE_FILE", ""),
		ShutdownTimeout: getEnvDuration("APP_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// Validate checks cross-field constraints that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	if c.App.CourseFile == "" && c.Sheets.SpreadsheetID == "" && !c.Database.UseAsRoster {
		return fmt.Errorf("config: either SPREADSHEET_ID, COURSE_FILE or DATABASE_USE_AS_ROSTER must be set")
	}
	if c.Database.UseAsRoster && c.Database.URL == "" {
		return fmt.Errorf("config: DATABASE_USE_AS_ROSTER requires DATABASE_URL")
	}
	if c.Gradescope.Enabled && (c.Gradescope.Email == "" || c.Gradescope.Password == "") {
		return fmt.Errorf("config: EXTEND_GRADESCOPE_ASSIGNMENTS requires GRADESCOPE_EMAIL and GRADESCOPE_PASSWORD")
	}
	return nil
}

// ApplyOverrides merges per-course settings from the spreadsheet's
// Environment tab. Keys follow the long-standing course convention
// (AUTO_APPROVE_THRESHOLD, EMAIL_FROM, ...); unknown keys are ignored so an
// extra row cannot break the deployment.
func (c *Config) ApplyOverrides(overrides map[string]string) {
	for key, value := range overrides {
		switch key {
		case "AUTO_APPROVE_THRESHOLD":
			setInt(&c.Policy.AutoApproveThreshold, value)
		case "AUTO_APPROVE_THRESHOLD_DSP":
			setInt(&c.Policy.AutoApproveThresholdDSP, value)
		case "AUTO_APPROVE_ASSIGNMENT_THRESHOLD":
			setInt(&c.Policy.AutoApproveAssignmentThreshold, value)
		case "MAX_TOTAL_REQUESTED_EXTENSIONS_THRESHOLD":
			setInt(&c.Policy.MaxTotalRequestedExtensions, value)
		case "EMAIL_FROM":
			c.Email.From = value
		case "EMAIL_REPLY_TO":
			c.Email.ReplyTo = value
		case "EMAIL_CC":
			c.Email.CC = splitList(value)
		case "EMAIL_SUBJECT":
			c.Email.Subject = value
		case "EMAIL_SIGNATURE":
			c.Email.Signature = value
		case "SLACK_TAG_LIST":
			c.Slack.ReviewerTags = splitList(value)
		case "SPREADSHEET_URL":
			c.Sheets.SpreadsheetURL = value
		case "EXTEND_GRADESCOPE_ASSIGNMENTS":
			c.Gradescope.Enabled = strings.EqualFold(value, "yes") || strings.EqualFold(value, "true")
		case "TIMEZONE":
			c.App.Timezone = value
			c.App.Location = timeutil.CourseLocation(value)
		}
	}
}

// IsProduction returns true in the production environment.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// --- Helper functions for environment variable parsing ---

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvSlice(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return splitList(val)
}

func splitList(val string) []string {
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		result = append(result, p)
	}
	return result
}

func setInt(dst *int, value string) {
	if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		*dst = i
	}
}
