package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the runtime configuration for every pipeline stage.
type Config struct {
	// AWS
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`

	// Transcoding
	MediaConvertRoleARN  string `yaml:"mediaconvert_role_arn"`
	MediaConvertEndpoint string `yaml:"mediaconvert_endpoint"`
	DiscoverEndpoint     bool   `yaml:"discover_endpoint"`
	MediaConvertQueue    string `yaml:"mediaconvert_queue"`
	OutputBucket         string `yaml:"output_bucket"`
	OutputPrefix         string `yaml:"output_prefix"`
	ProfileVariant       string `yaml:"profile_variant"`

	// Fan-out
	AnalysisBucket      string   `yaml:"analysis_bucket"`
	EventBusName        string   `yaml:"event_bus_name"`
	EventSource         string   `yaml:"event_source"`
	EventDetailType     string   `yaml:"event_detail_type"`
	AnalysisTypes       []string `yaml:"analysis_types"`
	PublishFailureFatal bool     `yaml:"publish_failure_fatal"`

	// Analyzers
	TwelveLabsAPIKey   string        `yaml:"twelvelabs_api_key"`
	TwelveLabsBaseURL  string        `yaml:"twelvelabs_base_url"`
	TwelveLabsEngine   string        `yaml:"twelvelabs_engine"`
	TranscribeLanguage string        `yaml:"transcribe_language"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	MaxWait            time.Duration `yaml:"max_wait"`
	Workers            int           `yaml:"workers"`

	// Result persistence
	ResultBackend        string            `yaml:"result_backend"` // s3, gcs, sftp or local
	ResultBackendOptions map[string]string `yaml:"result_backend_options"`

	// Server
	ListenAddr    string `yaml:"listen_addr"`
	WebhookSecret string `yaml:"webhook_secret"`
	WebhookIssuer string `yaml:"webhook_issuer"`

	// Housekeeping
	LogLevel      string `yaml:"log_level"`
	LogFile       string `yaml:"log_file"`
	RetentionDays int    `yaml:"retention_days"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Region:             "us-east-1",
		DiscoverEndpoint:   true,
		OutputPrefix:       "converted",
		ProfileVariant:     "standardize",
		EventBusName:       "default",
		EventSource:        "custom.video-pipeline",
		EventDetailType:    "Video Analysis Required",
		AnalysisTypes:      []string{"rekognition", "twelvelabs", "transcribe"},
		TwelveLabsBaseURL:  "https://api.twelvelabs.io/v1.2",
		TwelveLabsEngine:   "marengo2.6",
		TranscribeLanguage: "ko-KR",
		PollInterval:       30 * time.Second,
		MaxWait:            10 * time.Minute,
		Workers:            4,
		ResultBackend:      "s3",
		ListenAddr:         ":8080",
		LogLevel:           "info",
		RetentionDays:      30,
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// CLIPFLOW_CONFIG (if any), then environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CLIPFLOW_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.Region, "AWS_REGION")
	setString(&c.AccessKeyID, "CLIPFLOW_AWS_ACCESS_KEY_ID")
	setString(&c.SecretAccessKey, "CLIPFLOW_AWS_SECRET_ACCESS_KEY")

	setString(&c.MediaConvertRoleARN, "MEDIACONVERT_ROLE_ARN")
	setString(&c.MediaConvertEndpoint, "MEDIACONVERT_ENDPOINT")
	setBool(&c.DiscoverEndpoint, "MEDIACONVERT_DISCOVER_ENDPOINT")
	setString(&c.MediaConvertQueue, "MEDIACONVERT_QUEUE")
	setString(&c.OutputBucket, "OUTPUT_BUCKET")
	setString(&c.OutputPrefix, "OUTPUT_PREFIX")
	setString(&c.ProfileVariant, "CLIPFLOW_PROFILE_VARIANT")

	setString(&c.AnalysisBucket, "ANALYSIS_BUCKET")
	setString(&c.EventBusName, "EVENT_BUS_NAME")
	setString(&c.EventSource, "EVENT_SOURCE")
	setString(&c.EventDetailType, "EVENT_DETAIL_TYPE")
	if v, ok := os.LookupEnv("ANALYSIS_TYPES"); ok && v != "" {
		c.AnalysisTypes = splitList(v)
	}
	setBool(&c.PublishFailureFatal, "CLIPFLOW_PUBLISH_FAILURE_FATAL")

	setString(&c.TwelveLabsAPIKey, "TWELVE_LABS_API_KEY")
	setString(&c.TwelveLabsBaseURL, "TWELVE_LABS_BASE_URL")
	setString(&c.TwelveLabsEngine, "TWELVE_LABS_ENGINE")
	setString(&c.TranscribeLanguage, "TRANSCRIBE_LANGUAGE")
	setDuration(&c.PollInterval, "CLIPFLOW_POLL_INTERVAL")
	setDuration(&c.MaxWait, "CLIPFLOW_MAX_WAIT")
	setInt(&c.Workers, "CLIPFLOW_WORKERS")

	setString(&c.ResultBackend, "CLIPFLOW_RESULT_BACKEND")
	for _, kv := range os.Environ() {
		name, value, _ := strings.Cut(kv, "=")
		if opt, ok := strings.CutPrefix(name, "CLIPFLOW_RESULT_OPT_"); ok && opt != "" {
			if c.ResultBackendOptions == nil {
				c.ResultBackendOptions = map[string]string{}
			}
			c.ResultBackendOptions[optionKey(opt)] = value
		}
	}

	setString(&c.ListenAddr, "CLIPFLOW_LISTEN_ADDR")
	setString(&c.WebhookSecret, "CLIPFLOW_WEBHOOK_SECRET")
	setString(&c.WebhookIssuer, "CLIPFLOW_WEBHOOK_ISSUER")

	setString(&c.LogLevel, "CLIPFLOW_LOG_LEVEL")
	setString(&c.LogFile, "CLIPFLOW_LOG_FILE")
	setInt(&c.RetentionDays, "CLIPFLOW_RETENTION_DAYS")
}

// Validate rejects values no stage can work with. Bucket names are checked
// by the stages that need them so the CLI can run partial flows.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.MaxWait < 0 {
		return fmt.Errorf("max wait must not be negative, got %s", c.MaxWait)
	}
	switch c.ResultBackend {
	case "s3", "gcs", "sftp", "local":
	default:
		return fmt.Errorf("unknown result backend %q", c.ResultBackend)
	}
	switch c.ProfileVariant {
	case "standardize", "sd":
	default:
		return fmt.Errorf("unknown profile variant %q", c.ProfileVariant)
	}
	return nil
}

// optionKey turns BASE_DIR into baseDir so env options match the YAML keys.
func optionKey(env string) string {
	parts := strings.Split(strings.ToLower(env), "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
