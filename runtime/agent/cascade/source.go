package cascade

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PathSource resolves Config from a file on disk. The format is sniffed
// from the extension; ".yaml"/".yml" decode as YAML, anything else as JSON.
type PathSource string

// ConfigSource is anything Runner.Run can resolve into a Config: a Config
// value itself, raw bytes (JSON or YAML, sniffed), or a PathSource.
type ConfigSource any

// resolveConfig normalizes src into a Config, per §4.9 step 1.
func resolveConfig(src ConfigSource) (Config, error) {
	switch v := src.(type) {
	case Config:
		return v, nil
	case *Config:
		return *v, nil
	case []byte:
		return decodeConfig(v)
	case string:
		return decodeConfig([]byte(v))
	case PathSource:
		data, err := os.ReadFile(string(v))
		if err != nil {
			return Config{}, fmt.Errorf("cascade: read config %q: %w", v, err)
		}
		return decodeConfig(data)
	default:
		return Config{}, fmt.Errorf("cascade: unsupported config source type %T", src)
	}
}

// decodeConfig sniffs JSON vs YAML by attempting JSON first: a YAML
// document that happens to also be valid JSON is handled identically by
// either decoder, and JSON is the common case for programmatic callers.
func decodeConfig(data []byte) (Config, error) {
	trimmed := bytes.TrimSpace(data)
	var cfg Config
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		if err := json.Unmarshal(trimmed, &cfg); err == nil {
			return cfg, nil
		}
	}
	if err := yaml.Unmarshal(trimmed, &cfg); err != nil {
		return Config{}, fmt.Errorf("cascade: decode config: %w", err)
	}
	return cfg, nil
}

// validateConfig enforces §6.1's field-presence and referenced-name rules.
func validateConfig(cfg Config) error {
	if cfg.CascadeID == "" {
		return fmt.Errorf("cascade: cascade_id is required")
	}
	if len(cfg.Phases) == 0 {
		return fmt.Errorf("cascade: phases must be non-empty")
	}
	names := make(map[string]bool, len(cfg.Phases))
	for _, p := range cfg.Phases {
		if p.Name == "" {
			return fmt.Errorf("cascade: phase name is required")
		}
		if names[p.Name] {
			return fmt.Errorf("cascade: duplicate phase name %q", p.Name)
		}
		names[p.Name] = true
	}
	for _, p := range cfg.Phases {
		for _, h := range p.Handoffs {
			if h.Target == HandoffStop || h.Target == HandoffPass {
				continue
			}
			if !names[h.Target] {
				return fmt.Errorf("cascade: phase %q handoff references unknown phase %q", p.Name, h.Target)
			}
		}
	}
	return nil
}
