package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)
	redact(&out.Keys.MasterPassword)
	redact(&out.Keys.APIKey)
	redact(&out.Keys.APISecret)

	// Copy slices and maps so callers cannot mutate the original through the
	// redacted copy.
	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}
	if cfg.Feed.Symbols != nil {
		out.Feed.Symbols = make([]string, len(cfg.Feed.Symbols))
		copy(out.Feed.Symbols, cfg.Feed.Symbols)
	}
	if cfg.Engine.Sectors != nil {
		out.Engine.Sectors = make(map[string]string, len(cfg.Engine.Sectors))
		for k, v := range cfg.Engine.Sectors {
			out.Engine.Sectors[k] = v
		}
	}
	if cfg.Risk.AssetVolatility != nil {
		out.Risk.AssetVolatility = make(map[string]float64, len(cfg.Risk.AssetVolatility))
		for k, v := range cfg.Risk.AssetVolatility {
			out.Risk.AssetVolatility[k] = v
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
