package config

import (
	"time"
)

// LLMConfig represents the configuration for the LLM provider
type LLMConfig struct {
	Provider string
}

// MailConfig selects the mailbox provider
type MailConfig struct {
	Provider string
}

// ModelConfig holds the settings shared by every classifier backend
type ModelConfig struct {
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	ModelConfig
	APIKey string
	// BaseURL points at an OpenAI-compatible endpoint when set
	BaseURL string
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	ModelConfig
	APIKey string
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	ModelConfig
	Region string
}

// OllamaConfig represents the configuration for a local Ollama server
type OllamaConfig struct {
	ModelConfig
	Host string
}

// GmailConfig represents the configuration for the Gmail API
type GmailConfig struct {
	CredentialsFile string
	UserID          string
	Query           string
	PermanentDelete bool
	RPS             float64
}

// IMAPConfig represents the configuration for an IMAP mailbox
type IMAPConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	TLS                bool
	InsecureSkipVerify bool
	Mailbox            string
	TrashMailbox       string
	RPS                float64
}

// TriageConfig holds the pipeline settings
type TriageConfig struct {
	MaxResults         int
	LabelRetries       int
	RetryBackoff       time.Duration
	SpamLabel          string
	HamLabel           string
	UnsureLabel        string
	DeleteSpam         bool
	DryRun             bool
	WhitelistedDomains []string
	SnippetLength      int
}

// CacheConfig represents the verdict cache configuration
type CacheConfig struct {
	Enabled          bool
	Type             string
	TTL              time.Duration
	CleanupFrequency time.Duration
	SQLitePath       string
	MySQLDSN         string
}

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider: c.GetString("llm.provider"),
	}
}

// GetMail returns the mailbox provider configuration
func (c *Config) GetMail() MailConfig {
	return MailConfig{
		Provider: c.GetString("mail.provider"),
	}
}

func (c *Config) model(prefix string) ModelConfig {
	return ModelConfig{
		ModelName:   c.GetString(prefix + ".model_name"),
		MaxTokens:   c.GetInt(prefix + ".max_tokens"),
		Temperature: float32(c.GetFloat64(prefix + ".temperature")),
		TopP:        float32(c.GetFloat64(prefix + ".top_p")),
		MaxBodySize: c.GetInt(prefix + ".max_body_size"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		ModelConfig: c.model("openai"),
		APIKey:      c.GetString("openai.api_key"),
		BaseURL:     c.GetString("openai.base_url"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		ModelConfig: c.model("gemini"),
		APIKey:      c.GetString("gemini.api_key"),
	}
}

// GetBedrock returns the Bedrock configuration. Bedrock names its model model_id.
func (c *Config) GetBedrock() BedrockConfig {
	m := c.model("bedrock")
	m.ModelName = c.GetString("bedrock.model_id")
	return BedrockConfig{
		ModelConfig: m,
		Region:      c.GetString("bedrock.region"),
	}
}

// GetOllama returns the Ollama configuration
func (c *Config) GetOllama() OllamaConfig {
	return OllamaConfig{
		ModelConfig: c.model("ollama"),
		Host:        c.GetString("ollama.host"),
	}
}

// GetGmail returns the Gmail configuration
func (c *Config) GetGmail() GmailConfig {
	return GmailConfig{
		CredentialsFile: c.GetString("gmail.credentials_file"),
		UserID:          c.GetString("gmail.user_id"),
		Query:           c.GetString("gmail.query"),
		PermanentDelete: c.GetBool("gmail.permanent_delete"),
		RPS:             c.GetFloat64("gmail.rps"),
	}
}

// GetIMAP returns the IMAP configuration
func (c *Config) GetIMAP() IMAPConfig {
	return IMAPConfig{
		Host:               c.GetString("imap.host"),
		Port:               c.GetInt("imap.port"),
		Username:           c.GetString("imap.username"),
		Password:           c.GetString("imap.password"),
		TLS:                c.GetBool("imap.tls"),
		InsecureSkipVerify: c.GetBool("imap.insecure_skip_verify"),
		Mailbox:            c.GetString("imap.mailbox"),
		TrashMailbox:       c.GetString("imap.trash_mailbox"),
		RPS:                c.GetFloat64("imap.rps"),
	}
}

// GetTriage returns the pipeline configuration
func (c *Config) GetTriage() (TriageConfig, error) {
	backoff, err := c.GetDuration("triage.retry_backoff")
	if err != nil {
		return TriageConfig{}, err
	}
	return TriageConfig{
		MaxResults:         c.GetInt("triage.max_results"),
		LabelRetries:       c.GetInt("triage.label_retries"),
		RetryBackoff:       backoff,
		SpamLabel:          c.GetString("triage.labels.spam"),
		HamLabel:           c.GetString("triage.labels.ham"),
		UnsureLabel:        c.GetString("triage.labels.unsure"),
		DeleteSpam:         c.GetBool("triage.delete_spam"),
		DryRun:             c.GetBool("triage.dry_run"),
		WhitelistedDomains: c.GetStringSlice("triage.whitelisted_domains"),
		SnippetLength:      c.GetInt("triage.snippet_length"),
	}, nil
}

// GetCache returns the verdict cache configuration
func (c *Config) GetCache() (CacheConfig, error) {
	ttl, err := c.GetDuration("cache.ttl")
	if err != nil {
		return CacheConfig{}, err
	}
	cleanup, err := c.GetDuration("cache.cleanup_frequency")
	if err != nil {
		return CacheConfig{}, err
	}
	return CacheConfig{
		Enabled:          c.GetBool("cache.enabled"),
		Type:             c.GetString("cache.type"),
		TTL:              ttl,
		CleanupFrequency: cleanup,
		SQLitePath:       c.GetString("cache.sqlite_path"),
		MySQLDSN:         c.GetString("cache.mysql_dsn"),
	}, nil
}
