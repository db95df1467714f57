package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/scpibridge/internal/config"
	"github.com/danmuck/scpibridge/internal/hub"
	"github.com/danmuck/scpibridge/internal/transport"
)

// loadServiceConfig overlays the keys present in path onto
// hub.DefaultServiceConfig.
func loadServiceConfig(path string) (hub.ServiceConfig, error) {
	cfg := hub.DefaultServiceConfig()

	var raw config.HubFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return hub.ServiceConfig{}, fmt.Errorf("load hub config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return hub.ServiceConfig{}, fmt.Errorf("load hub config: unknown keys %v", undecoded)
	}
	if err := config.ValidateHubFile(raw); err != nil {
		return hub.ServiceConfig{}, err
	}

	if meta.IsDefined("hub_id") {
		if id := strings.TrimSpace(raw.HubID); id != "" {
			cfg.HubID = id
		}
	}
	if meta.IsDefined("transport") {
		cfg.Transport.Kind = strings.ToLower(strings.TrimSpace(raw.Transport))
	}
	if meta.IsDefined("channel") {
		cfg.Transport.Channel = raw.Channel
	}
	switch cfg.Transport.Kind {
	case transport.KindTCP:
		if meta.IsDefined("bind") {
			cfg.Transport.Address = strings.TrimSpace(raw.Bind)
		}
	default:
		if meta.IsDefined("adapter") {
			cfg.Transport.Address = strings.TrimSpace(raw.Adapter)
		}
	}
	if meta.IsDefined("admin_listen_addr") {
		cfg.AdminListenAddr = strings.TrimSpace(raw.AdminListenAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = raw.CORSOrigins
	}
	if meta.IsDefined("validate_addresses") {
		cfg.ValidateAddresses = raw.ValidateAddresses
	}

	durations := []struct {
		key    string
		raw    string
		target *time.Duration
	}{
		{"query_settle", raw.QuerySettle, &cfg.Timing.QuerySettle},
		{"set_pre_delay", raw.SetPreDelay, &cfg.Timing.SetPreDelay},
		{"set_post_delay", raw.SetPostDelay, &cfg.Timing.SetPostDelay},
		{"read_timeout", raw.ReadTimeout, &cfg.Timing.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Session.WriteTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := config.ParseDuration(d.raw)
		if err != nil {
			return hub.ServiceConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.target = v
	}

	cfg.Instruments = config.ManagerConfig(raw)
	return cfg, nil
}
