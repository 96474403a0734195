// Package config handles root configuration loading for the correlation
// core using viper, with an otus-corr.* key prefix and environment
// variable overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/sipcorrelator/otuscorr/internal/log"
	"github.com/sipcorrelator/otuscorr/internal/matchfilter"
)

// CaptureOpts holds the capture/rotation knobs for the store.
type CaptureOpts struct {
	Limit    uint32 `mapstructure:"limit"`
	Rotate   bool   `mapstructure:"rotate"`
	RTP      bool   `mapstructure:"rtp"`
	SavePath string `mapstructure:"save_path"`
}

// MatchOpts is the exact shape internal/matchfilter.Compile consumes, so
// no translation step is needed between config loading and filter
// construction.
type MatchOpts = matchfilter.Opts

// SortOpts carries the initial sort attribute and direction. By is the
// raw attribute name from config; internal/store resolves it (falling
// back to CALLINDEX ascending for an unrecognized name) rather than
// failing config validation, since that fallback is documented store
// behavior, not a configuration error.
type SortOpts struct {
	By  string `mapstructure:"by"`
	Asc bool   `mapstructure:"asc"`
}

// RootConfig is the top-level static configuration for the otus-corr
// binary: the store's three option structs plus the ambient logger.
type RootConfig struct {
	Capture CaptureOpts     `mapstructure:"capture"`
	Match   MatchOpts       `mapstructure:"match"`
	Sort    SortOpts        `mapstructure:"sort"`
	Log     log.LoggerConfig `mapstructure:"log"`
}

// configRoot is the top-level wrapper matching the YAML structure
// `otus-corr: ...`.
type configRoot struct {
	OtusCorr RootConfig `mapstructure:"otus-corr"`
}

// Load reads configuration from path (if non-empty), applies defaults and
// environment-variable overrides, and returns the resolved RootConfig. Regex
// compilation and sort-attribute resolution are NOT performed here — they
// happen in matchfilter.Compile / store.Init, since those are the
// components that own the validation.
func Load(path string) (*RootConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg := root.OtusCorr
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("otus-corr.capture.limit", 1000)
	v.SetDefault("otus-corr.capture.rotate", true)
	v.SetDefault("otus-corr.capture.rtp", true)

	v.SetDefault("otus-corr.match.icase", false)
	v.SetDefault("otus-corr.match.invert", false)
	v.SetDefault("otus-corr.match.invite_only", false)
	v.SetDefault("otus-corr.match.complete_only", false)

	v.SetDefault("otus-corr.sort.by", "CALLINDEX")
	v.SetDefault("otus-corr.sort.asc", true)

	v.SetDefault("otus-corr.log.level", "info")
	v.SetDefault("otus-corr.log.formatter.full_timestamp", true)
}
