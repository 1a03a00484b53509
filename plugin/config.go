package plugin

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Names of the configuration items the plugin understands
const (
	ItemPlugin          = "plugin"
	ItemPins            = "pins"
	ItemAssetNamePrefix = "assetNamePrefix"
	ItemPollInterval    = "pollInterval"
)

// ConfigItem describes a single configuration option of the plugin category
type ConfigItem struct {
	Description string `json:"description"`
	Type        string `json:"type"`
	Default     string `json:"default"`
	Value       string `json:"value,omitempty"`
	Order       int    `json:"order,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Readonly    bool   `json:"readonly,omitempty"`
}

// Configuration maps item names to their descriptors
type Configuration map[string]ConfigItem

// DefaultConfig returns the plugin configuration schema with every value set to its default
func DefaultConfig() Configuration {
	cfg := Configuration{
		ItemPlugin: {
			Description: "PT100 Poll Plugin",
			Type:        "string",
			Default:     "pt100",
			Readonly:    true,
		},
		ItemPins: {
			Description: "Chip select pins to check",
			Type:        "string",
			Default:     "8",
			Order:       1,
			DisplayName: "Chip Select Pins",
		},
		ItemAssetNamePrefix: {
			Description: "Prefix of the asset name of each reading",
			Type:        "string",
			Default:     "PT100/",
			Order:       2,
			DisplayName: "Asset Name Prefix",
		},
		ItemPollInterval: {
			Description: "The interval between poll calls to the South device poll routine expressed in milliseconds.",
			Type:        "integer",
			Default:     "5000",
			Order:       3,
			DisplayName: "Poll Interval (ms)",
		},
	}

	for name, item := range cfg {
		item.Value = item.Default
		cfg[name] = item
	}

	return cfg
}

// Keys returns the item names ordered by their Order field, then by name
func (c Configuration) Keys() []string {
	keys := make([]string, 0, len(c))
	for name := range c {
		keys = append(keys, name)
	}

	sort.Slice(keys, func(i, j int) bool {
		oi, oj := c[keys[i]].Order, c[keys[j]].Order
		if oi != oj {
			return oi < oj
		}
		return keys[i] < keys[j]
	})

	return keys
}

// Clone returns an independent copy of the configuration
func (c Configuration) Clone() Configuration {
	if c == nil {
		return nil
	}

	out := make(Configuration, len(c))
	for name, item := range c {
		out[name] = item
	}
	return out
}

// WithValues returns a copy of the configuration with the given item values applied.
// Names are matched case-insensitively; unknown names become new string items.
func (c Configuration) WithValues(values map[string]string) Configuration {
	out := c.Clone()
	if out == nil {
		out = Configuration{}
	}

	for name, value := range values {
		key := name
		for existing := range out {
			if strings.EqualFold(existing, name) {
				key = existing
				break
			}
		}

		item, ok := out[key]
		if !ok {
			item = ConfigItem{Type: "string"}
		}
		item.Value = value
		out[key] = item
	}

	return out
}

// DecodeValues parses a JSON object of item values, e.g. {"pins": "8,11", "pollInterval": 1000}
func DecodeValues(data []byte) (map[string]string, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid configuration values: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("no configuration values")
	}

	values := make(map[string]string, len(raw))
	for name, value := range raw {
		switch v := value.(type) {
		case string:
			values[name] = v
		case nil:
			values[name] = ""
		case float64:
			values[name] = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			values[name] = fmt.Sprint(v)
		}
	}
	return values, nil
}

// Settings is the validated view of a Configuration used by the engine
type Settings struct {
	Pins            []int
	AssetNamePrefix string
	PollInterval    time.Duration
}

// Settings validates the items the engine depends on and returns them as a typed record
func (c Configuration) Settings() (Settings, error) {
	pinsItem, ok := c[ItemPins]
	if !ok {
		return Settings{}, &ConfigError{Kind: ErrMissingOption, Option: ItemPins}
	}

	prefixItem, ok := c[ItemAssetNamePrefix]
	if !ok {
		return Settings{}, &ConfigError{Kind: ErrMissingOption, Option: ItemAssetNamePrefix}
	}

	pins, err := ParsePins(pinsItem.Value)
	if err != nil {
		return Settings{}, err
	}

	settings := Settings{
		Pins:            pins,
		AssetNamePrefix: prefixItem.Value,
	}

	if item, ok := c[ItemPollInterval]; ok && strings.TrimSpace(item.Value) != "" {
		ms, err := strconv.Atoi(strings.TrimSpace(item.Value))
		if err != nil || ms <= 0 {
			return Settings{}, &ConfigError{Kind: ErrInvalidValue, Option: ItemPollInterval, Token: item.Value}
		}
		settings.PollInterval = time.Duration(ms) * time.Millisecond
	}

	return settings, nil
}
