package config

import (
	"fmt"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// RegisterDefaults makes every configuration key known to v, so that
// AutomaticEnv can override keys that no config file mentions
// (e.g. ASSETLINE_IMAGES_QUIET=false).
func RegisterDefaults(v *viper.Viper) error {
	tree, err := defaultTree()
	if err != nil {
		return err
	}
	for key, value := range flatten("", tree) {
		v.SetDefault(key, value)
	}
	return nil
}

// MarshalDefaults renders the default configuration as YAML, used by `init`.
func MarshalDefaults() ([]byte, error) {
	return yaml.Marshal(Default())
}

func defaultTree() (map[string]interface{}, error) {
	raw, err := MarshalDefaults()
	if err != nil {
		return nil, fmt.Errorf("marshalling defaults: %w", err)
	}
	tree := make(map[string]interface{})
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("reading defaults back: %w", err)
	}
	return tree, nil
}

func flatten(prefix string, tree map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]interface{}); ok {
			for sk, sv := range flatten(key, sub) {
				out[sk] = sv
			}
			continue
		}
		out[key] = v
	}
	return out
}
