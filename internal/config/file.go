package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/spf13/viper"
)

// FileLoader is a kong.ConfigurationLoader that reads a YAML config file
// through viper. Keys are flag names, with either dashes or underscores:
//
//	frames: 600
//	delay: 2.5
//	log-level: debug
func FileLoader(r io.Reader) (kong.Resolver, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Resolver(v), nil
}

// Resolver exposes values held by v to kong. Command-line flags win over
// these; the file wins over LAPSE_* environment values.
func Resolver(v *viper.Viper) kong.Resolver {
	return kong.ResolverFunc(func(_ *kong.Context, _ *kong.Path, flag *kong.Flag) (any, error) {
		for _, key := range []string{flag.Name, strings.ReplaceAll(flag.Name, "-", "_")} {
			if v.IsSet(key) {
				// kong's mappers parse strings for every flag type
				return v.GetString(key), nil
			}
		}
		return nil, nil
	})
}
