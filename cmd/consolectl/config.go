package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/scpibridge/internal/config"
	"github.com/danmuck/scpibridge/internal/console"
	"github.com/danmuck/scpibridge/internal/dispatch"
)

// loadConsoleConfig overlays the keys present in path onto
// console.DefaultConfig.
func loadConsoleConfig(path string) (console.Config, error) {
	cfg := console.DefaultConfig()

	var raw config.ConsoleFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return console.Config{}, fmt.Errorf("load console config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return console.Config{}, fmt.Errorf("load console config: unknown keys %v", undecoded)
	}
	if err := config.ValidateConsoleFile(raw); err != nil {
		return console.Config{}, err
	}

	if meta.IsDefined("transport") {
		cfg.Transport.Kind = strings.ToLower(strings.TrimSpace(raw.Transport))
	}
	cfg.Transport.Address = strings.TrimSpace(raw.HubAddress)
	if meta.IsDefined("channel") {
		cfg.Transport.Channel = raw.Channel
	}
	if meta.IsDefined("max_connect_attempts") && raw.MaxConnectAttempts > 0 {
		cfg.MaxConnectAttempts = raw.MaxConnectAttempts
	}

	timing := dispatch.DefaultTiming()
	for key, target := range map[string]struct {
		raw string
		dst *time.Duration
	}{
		"connect_timeout":   {raw.ConnectTimeout, &cfg.Session.ConnectTimeout},
		"reply_timeout":     {raw.ReplyTimeout, &cfg.Session.ReplyTimeout},
		"directory_timeout": {raw.DirectoryTimeout, &cfg.DirectoryTimeout},
		"set_pre_delay":     {raw.SetPreDelay, &timing.SetPreDelay},
		"set_post_delay":    {raw.SetPostDelay, &timing.SetPostDelay},
	} {
		if !meta.IsDefined(key) {
			continue
		}
		v, err := config.ParseDuration(target.raw)
		if err != nil {
			return console.Config{}, fmt.Errorf("parse %s: %w", key, err)
		}
		*target.dst = v
	}
	cfg.SetDelay = timing.SetPreDelay + timing.SetPostDelay
	return cfg, nil
}
