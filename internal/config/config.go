package config

import (
	_ "embed"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Database DatabaseConfig
	Encoder  EncoderConfig
	OpenAI   OpenAIConfig
	Gemini   GeminiConfig
	AI       AIConfig
	Twilio   TwilioConfig
	Web      WebConfig
	Gate     GateConfig
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type EncoderConfig struct {
	URL string // face encoder service, defaults to http://localhost:8000
}

type OpenAIConfig struct {
	Token string
}

type GeminiConfig struct {
	APIKey string
}

type AIConfig struct {
	Provider string // "openai" (default) or "gemini"
}

type TwilioConfig struct {
	AccountSID     string
	AuthToken      string
	WhatsAppNumber string // sending channel, e.g. +14155238886
	ApproverNumber string // fallback recipient when the responsible party has no channel
	PublicURL      string // public base URL for status callbacks (e.g. ngrok tunnel)
}

type WebConfig struct {
	Port int
	Host string
}

// GateConfig holds the matching and workflow tunables. Defaults ship in the
// embedded defaults.yaml; individual values can be overridden via env vars.
type GateConfig struct {
	MatchThreshold   float64 `yaml:"match_threshold"`
	EncodingDim      int     `yaml:"encoding_dim"`
	SessionTTLMin    int     `yaml:"session_ttl_minutes"`
	HNSWCutoff       int     `yaml:"hnsw_cutoff"`
	EnrollmentPolicy string  `yaml:"enrollment_policy"`
}

// SessionTTL returns the visitor session expiry as a duration.
func (g *GateConfig) SessionTTL() time.Duration {
	return time.Duration(g.SessionTTLMin) * time.Minute
}

type defaults struct {
	Gate GateConfig `yaml:"gate"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envString reads an environment variable with a fallback default.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var d defaults
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Encoder: EncoderConfig{
			URL: os.Getenv("ENCODER_URL"),
		},
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
		AI: AIConfig{
			Provider: envString("AI_PROVIDER", "openai"),
		},
		Twilio: TwilioConfig{
			AccountSID:     os.Getenv("TWILIO_ACCOUNT_SID"),
			AuthToken:      os.Getenv("TWILIO_AUTH_TOKEN"),
			WhatsAppNumber: os.Getenv("TWILIO_WHATSAPP_NUMBER"),
			ApproverNumber: os.Getenv("APPROVER_WHATSAPP_NUMBER"),
			PublicURL:      os.Getenv("PUBLIC_URL"),
		},
		Web: WebConfig{
			Port: envInt("WEB_PORT", 8080),
			Host: envString("WEB_HOST", "0.0.0.0"),
		},
		Gate: GateConfig{
			MatchThreshold:   envFloat("MATCH_THRESHOLD", d.Gate.MatchThreshold),
			EncodingDim:      envInt("ENCODING_DIM", d.Gate.EncodingDim),
			SessionTTLMin:    envInt("SESSION_TTL_MINUTES", d.Gate.SessionTTLMin),
			HNSWCutoff:       envInt("HNSW_CUTOFF", d.Gate.HNSWCutoff),
			EnrollmentPolicy: envString("ENROLLMENT_POLICY", d.Gate.EnrollmentPolicy),
		},
	}
}
