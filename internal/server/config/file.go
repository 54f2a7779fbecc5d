package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/voicemfa/internal/flagx"
	"github.com/dmitrijs2005/voicemfa/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the configuration. Durations accept
// "15m"-style strings or integer nanoseconds. It is seeded from the current
// Config before decoding so keys missing from the file keep their values.
type FileConfig struct {
	EndpointAddrGRPC string `json:"endpoint_addr_grpc" yaml:"endpoint_addr_grpc"`
	DatabaseDSN      string `json:"database_dsn" yaml:"database_dsn"`
	LogLevel         string `json:"log_level" yaml:"log_level"`

	SecretKey   string         `json:"secret_key" yaml:"secret_key"`
	VaultKeyHex string         `json:"vault_key_hex" yaml:"vault_key_hex"`
	SessionTTL  timex.Duration `json:"session_ttl" yaml:"session_ttl"`

	ChallengeTTL        timex.Duration `json:"challenge_ttl" yaml:"challenge_ttl"`
	PhraseMatchStrict   bool           `json:"phrase_match_strict" yaml:"phrase_match_strict"`
	PhraseAllowedMisses int            `json:"phrase_allowed_misses" yaml:"phrase_allowed_misses"`

	MaxFailedAttempts int            `json:"max_failed_attempts" yaml:"max_failed_attempts"`
	LockoutDuration   timex.Duration `json:"lockout_duration" yaml:"lockout_duration"`
	PINCost           int            `json:"pin_cost" yaml:"pin_cost"`

	SimilarityThreshold float64        `json:"similarity_threshold" yaml:"similarity_threshold"`
	SilenceEpsilon      float64        `json:"silence_epsilon" yaml:"silence_epsilon"`
	ClippingRatio       float64        `json:"clipping_ratio" yaml:"clipping_ratio"`
	TargetSampleRate    int            `json:"target_sample_rate" yaml:"target_sample_rate"`
	TargetPeakDBFS      float64        `json:"target_peak_dbfs" yaml:"target_peak_dbfs"`
	MaxAudioBytes       int64          `json:"max_audio_bytes" yaml:"max_audio_bytes"`
	EnrollmentTTL       timex.Duration `json:"enrollment_ttl" yaml:"enrollment_ttl"`

	ShiftEndHour  int     `json:"shift_end_hour" yaml:"shift_end_hour"`
	ShiftTimezone string  `json:"shift_timezone" yaml:"shift_timezone"`
	FinePerHour   float64 `json:"fine_per_hour" yaml:"fine_per_hour"`

	RateLimitPerMinute int    `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	RateLimitBurst     int    `json:"rate_limit_burst" yaml:"rate_limit_burst"`
	RedisAddr          string `json:"redis_addr" yaml:"redis_addr"`

	EnhanceURL        string         `json:"enhance_url" yaml:"enhance_url"`
	SpoofURL          string         `json:"spoof_url" yaml:"spoof_url"`
	EmbedURL          string         `json:"embed_url" yaml:"embed_url"`
	TranscribeURL     string         `json:"transcribe_url" yaml:"transcribe_url"`
	CapabilityTimeout timex.Duration `json:"capability_timeout" yaml:"capability_timeout"`

	StagingDir     string `json:"staging_dir" yaml:"staging_dir"`
	S3RootUser     string `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region       string `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`

	JanitorInterval timex.Duration `json:"janitor_interval" yaml:"janitor_interval"`
}

func fileConfigFrom(c *Config) *FileConfig {
	return &FileConfig{
		EndpointAddrGRPC:    c.EndpointAddrGRPC,
		DatabaseDSN:         c.DatabaseDSN,
		LogLevel:            c.LogLevel,
		SecretKey:           c.SecretKey,
		VaultKeyHex:         c.VaultKeyHex,
		SessionTTL:          timex.Duration{Duration: c.SessionTTL},
		ChallengeTTL:        timex.Duration{Duration: c.ChallengeTTL},
		PhraseMatchStrict:   c.PhraseMatchStrict,
		PhraseAllowedMisses: c.PhraseAllowedMisses,
		MaxFailedAttempts:   c.MaxFailedAttempts,
		LockoutDuration:     timex.Duration{Duration: c.LockoutDuration},
		PINCost:             c.PINCost,
		SimilarityThreshold: c.SimilarityThreshold,
		SilenceEpsilon:      c.SilenceEpsilon,
		ClippingRatio:       c.ClippingRatio,
		TargetSampleRate:    c.TargetSampleRate,
		TargetPeakDBFS:      c.TargetPeakDBFS,
		MaxAudioBytes:       c.MaxAudioBytes,
		EnrollmentTTL:       timex.Duration{Duration: c.EnrollmentTTL},
		ShiftEndHour:        c.ShiftEndHour,
		ShiftTimezone:       c.ShiftTimezone,
		FinePerHour:         c.FinePerHour,
		RateLimitPerMinute:  c.RateLimitPerMinute,
		RateLimitBurst:      c.RateLimitBurst,
		RedisAddr:           c.RedisAddr,
		EnhanceURL:          c.EnhanceURL,
		SpoofURL:            c.SpoofURL,
		EmbedURL:            c.EmbedURL,
		TranscribeURL:       c.TranscribeURL,
		CapabilityTimeout:   timex.Duration{Duration: c.CapabilityTimeout},
		StagingDir:          c.StagingDir,
		S3RootUser:          c.S3RootUser,
		S3RootPassword:      c.S3RootPassword,
		S3Bucket:            c.S3Bucket,
		S3Region:            c.S3Region,
		S3BaseEndpoint:      c.S3BaseEndpoint,
		JanitorInterval:     timex.Duration{Duration: c.JanitorInterval},
	}
}

func (f *FileConfig) apply(c *Config) {
	c.EndpointAddrGRPC = f.EndpointAddrGRPC
	c.DatabaseDSN = f.DatabaseDSN
	c.LogLevel = f.LogLevel
	c.SecretKey = f.SecretKey
	c.VaultKeyHex = f.VaultKeyHex
	c.SessionTTL = f.SessionTTL.Duration
	c.ChallengeTTL = f.ChallengeTTL.Duration
	c.PhraseMatchStrict = f.PhraseMatchStrict
	c.PhraseAllowedMisses = f.PhraseAllowedMisses
	c.MaxFailedAttempts = f.MaxFailedAttempts
	c.LockoutDuration = f.LockoutDuration.Duration
	c.PINCost = f.PINCost
	c.SimilarityThreshold = f.SimilarityThreshold
	c.SilenceEpsilon = f.SilenceEpsilon
	c.ClippingRatio = f.ClippingRatio
	c.TargetSampleRate = f.TargetSampleRate
	c.TargetPeakDBFS = f.TargetPeakDBFS
	c.MaxAudioBytes = f.MaxAudioBytes
	c.EnrollmentTTL = f.EnrollmentTTL.Duration
	c.ShiftEndHour = f.ShiftEndHour
	c.ShiftTimezone = f.ShiftTimezone
	c.FinePerHour = f.FinePerHour
	c.RateLimitPerMinute = f.RateLimitPerMinute
	c.RateLimitBurst = f.RateLimitBurst
	c.RedisAddr = f.RedisAddr
	c.EnhanceURL = f.EnhanceURL
	c.SpoofURL = f.SpoofURL
	c.EmbedURL = f.EmbedURL
	c.TranscribeURL = f.TranscribeURL
	c.CapabilityTimeout = f.CapabilityTimeout.Duration
	c.StagingDir = f.StagingDir
	c.S3RootUser = f.S3RootUser
	c.S3RootPassword = f.S3RootPassword
	c.S3Bucket = f.S3Bucket
	c.S3Region = f.S3Region
	c.S3BaseEndpoint = f.S3BaseEndpoint
	c.JanitorInterval = f.JanitorInterval.Duration
}

// parseFile overlays values from the file named by -c/-config. Files ending
// in .yaml or .yml are decoded as YAML, anything else as JSON. Read and
// decode errors panic, as with bad flags.
func parseFile(config *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	b, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	fc := fileConfigFrom(config)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, fc)
	default:
		err = json.Unmarshal(b, fc)
	}
	if err != nil {
		panic(err)
	}

	fc.apply(config)
}
