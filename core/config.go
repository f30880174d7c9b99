package core

import (
	"fmt"
	"strings"
	"time"
)

type SignatureConfig struct {
	Header           string   `koanf:"header" mapstructure:"header"`
	ToleranceSeconds int      `koanf:"tolerance_seconds" mapstructure:"tolerance_seconds"`
	Secrets          []string `koanf:"secrets" mapstructure:"secrets"`
}

type DedupConfig struct {
	StaleProcessingSeconds int `koanf:"stale_processing_seconds" mapstructure:"stale_processing_seconds"`
	RetentionHours         int `koanf:"retention_hours" mapstructure:"retention_hours"`
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	Signature   SignatureConfig `koanf:"signature" mapstructure:"signature"`
	Dedup       DedupConfig     `koanf:"dedup" mapstructure:"dedup"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "webhook-ingest",
		Signature: SignatureConfig{
			Header:           "X-Webhook-Signature",
			ToleranceSeconds: 300,
		},
		Dedup: DedupConfig{
			StaleProcessingSeconds: 60,
			RetentionHours:         24 * 30,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Signature.Header) == "" {
		return fmt.Errorf("core: signature.header is required")
	}
	if c.Signature.ToleranceSeconds <= 0 {
		return fmt.Errorf("core: signature.tolerance_seconds must be positive")
	}
	if c.Dedup.StaleProcessingSeconds <= 0 {
		return fmt.Errorf("core: dedup.stale_processing_seconds must be positive")
	}
	if c.Dedup.RetentionHours <= 0 {
		return fmt.Errorf("core: dedup.retention_hours must be positive")
	}
	if time.Duration(c.Dedup.RetentionHours)*time.Hour <= c.Tolerance() {
		return fmt.Errorf("core: dedup.retention_hours must exceed the replay tolerance window")
	}
	return nil
}

func (c Config) Tolerance() time.Duration {
	return time.Duration(c.Signature.ToleranceSeconds) * time.Second
}

func (c Config) StaleProcessingThreshold() time.Duration {
	return time.Duration(c.Dedup.StaleProcessingSeconds) * time.Second
}

func (c Config) RetentionWindow() time.Duration {
	return time.Duration(c.Dedup.RetentionHours) * time.Hour
}

// SecretBytes returns the configured signing secrets in rotation order.
func (c Config) SecretBytes() [][]byte {
	if len(c.Signature.Secrets) == 0 {
		return nil
	}
	out := make([][]byte, 0, len(c.Signature.Secrets))
	for _, secret := range c.Signature.Secrets {
		trimmed := strings.TrimSpace(secret)
		if trimmed == "" {
			continue
		}
		out = append(out, []byte(trimmed))
	}
	return out
}
