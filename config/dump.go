package config

import (
	"fmt"
	"maps"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

var secretKeys = []string{"password", "basic_pass"}

// Dump renders the effective settings, defaults included, as yaml or toml.
// Secrets are masked.
func (c *Config) Dump(format string) ([]byte, error) {
	settings := maskSecrets(c.settings)

	switch format {
	case "", "yaml", "yml":
		return yaml.Marshal(settings)
	case "toml":
		return toml.Marshal(settings)
	default:
		return nil, fmt.Errorf("unsupported format: %s (must be 'yaml' or 'toml')", format)
	}
}

func maskSecrets(settings map[string]any) map[string]any {
	out := maps.Clone(settings)
	if out == nil {
		return map[string]any{}
	}

	if qbt, ok := out["qbittorrent"].(map[string]any); ok {
		qbt = maps.Clone(qbt)
		for _, key := range secretKeys {
			if v, ok := qbt[key].(string); ok && v != "" {
				qbt[key] = "********"
			}
		}
		out["qbittorrent"] = qbt
	}
	return out
}
