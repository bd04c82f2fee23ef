package config

import (
	"os"
	"time"
)

// ServerConfig configures the HTTP API server
type ServerConfig struct {
	ListenAddress   string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	SeedFile        string
}

// StoreConfig selects and configures the storage backend
type StoreConfig struct {
	Type             string
	SQLitePath       string
	MySQLDSN         string
	PostgresDSN      string
	CleanupFrequency time.Duration
	RunTTL           time.Duration
}

// AuthConfig configures token issuing
type AuthConfig struct {
	Secret   string
	TokenTTL time.Duration
}

// APIConfig configures the player's connection to the content API
type APIConfig struct {
	BaseURL     string
	Timeout     time.Duration
	SessionFile string
}

// InboxConfig tunes inbox runs
type InboxConfig struct {
	InitialBatch       int
	WaveBatch          int
	WaveDelay          time.Duration
	HighLevelThreshold int
	FetchTimeout       time.Duration
}

// TelemetryConfig tunes the side report queue
type TelemetryConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// MailinConfig configures the SMTP importer for player-authored levels
type MailinConfig struct {
	Enabled         bool
	ListenAddress   string
	Domain          string
	Username        string
	Password        string
	MaxMessageBytes int64
	AllowedDomains  []string
}

// AnalyzerConfig selects the LLM provider used to rate difficulty
type AnalyzerConfig struct {
	Provider    string
	MaxBodySize int
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// GetServer returns the server configuration
func (c *Config) GetServer() (ServerConfig, error) {
	read, err := c.GetDuration("server.read_timeout")
	if err != nil {
		return ServerConfig{}, err
	}
	write, err := c.GetDuration("server.write_timeout")
	if err != nil {
		return ServerConfig{}, err
	}
	shutdown, err := c.GetDuration("server.shutdown_timeout")
	if err != nil {
		return ServerConfig{}, err
	}
	return ServerConfig{
		ListenAddress:   c.GetString("server.listen_address"),
		ReadTimeout:     read,
		WriteTimeout:    write,
		ShutdownTimeout: shutdown,
		SeedFile:        c.GetString("server.seed_file"),
	}, nil
}

// GetStore returns the storage configuration
func (c *Config) GetStore() (StoreConfig, error) {
	freq, err := c.GetDuration("store.cleanup_frequency")
	if err != nil {
		return StoreConfig{}, err
	}
	ttl, err := c.GetDuration("store.run_ttl")
	if err != nil {
		return StoreConfig{}, err
	}
	return StoreConfig{
		Type:             c.GetString("store.type"),
		SQLitePath:       c.GetString("store.sqlite_path"),
		MySQLDSN:         c.GetString("store.mysql_dsn"),
		PostgresDSN:      c.GetString("store.postgres_dsn"),
		CleanupFrequency: freq,
		RunTTL:           ttl,
	}, nil
}

// GetAuth returns the token configuration
func (c *Config) GetAuth() (AuthConfig, error) {
	ttl, err := c.GetDuration("auth.token_ttl")
	if err != nil {
		return AuthConfig{}, err
	}
	return AuthConfig{
		Secret:   c.GetString("auth.secret"),
		TokenTTL: ttl,
	}, nil
}

// GetAPI returns the player's API configuration with the session path expanded
func (c *Config) GetAPI() (APIConfig, error) {
	timeout, err := c.GetDuration("api.timeout")
	if err != nil {
		return APIConfig{}, err
	}
	return APIConfig{
		BaseURL:     c.GetString("api.base_url"),
		Timeout:     timeout,
		SessionFile: os.ExpandEnv(c.GetString("api.session_file")),
	}, nil
}

// GetInbox returns the inbox run configuration
func (c *Config) GetInbox() (InboxConfig, error) {
	delay, err := c.GetDuration("inbox.wave_delay")
	if err != nil {
		return InboxConfig{}, err
	}
	fetch, err := c.GetDuration("inbox.fetch_timeout")
	if err != nil {
		return InboxConfig{}, err
	}
	return InboxConfig{
		InitialBatch:       c.GetInt("inbox.initial_batch"),
		WaveBatch:          c.GetInt("inbox.wave_batch"),
		WaveDelay:          delay,
		HighLevelThreshold: c.GetInt("inbox.high_level_threshold"),
		FetchTimeout:       fetch,
	}, nil
}

// GetTelemetry returns the side report configuration
func (c *Config) GetTelemetry() (TelemetryConfig, error) {
	timeout, err := c.GetDuration("telemetry.timeout")
	if err != nil {
		return TelemetryConfig{}, err
	}
	return TelemetryConfig{
		Workers:   c.GetInt("telemetry.workers"),
		QueueSize: c.GetInt("telemetry.queue_size"),
		Timeout:   timeout,
	}, nil
}

// GetMailin returns the mail import configuration
func (c *Config) GetMailin() MailinConfig {
	return MailinConfig{
		Enabled:         c.GetBool("mailin.enabled"),
		ListenAddress:   c.GetString("mailin.listen_address"),
		Domain:          c.GetString("mailin.domain"),
		Username:        c.GetString("mailin.username"),
		Password:        c.GetString("mailin.password"),
		MaxMessageBytes: int64(c.GetInt("mailin.max_message_bytes")),
		AllowedDomains:  c.GetStringSlice("mailin.allowed_domains"),
	}
}

// GetAnalyzer returns the analyzer selection
func (c *Config) GetAnalyzer() AnalyzerConfig {
	return AnalyzerConfig{
		Provider:    c.GetString("analyzer.provider"),
		MaxBodySize: c.GetInt("analyzer.max_body_size"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
	}
}
