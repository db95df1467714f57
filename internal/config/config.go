package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/scpibridge/internal/transport"
	"github.com/danmuck/scpibridge/internal/visa"
	"github.com/pelletier/go-toml/v2"
)

var ErrInvalidConfig = errors.New("config: invalid")

// HubFile is the on-disk hub configuration. Durations are Go duration
// strings; empty means the built-in default.
type HubFile struct {
	HubID             string          `toml:"hub_id"`
	Transport         string          `toml:"transport"`
	Adapter           string          `toml:"adapter"`
	Bind              string          `toml:"bind"`
	Channel           int             `toml:"channel"`
	AdminListenAddr   string          `toml:"admin_listen_addr"`
	CORSOrigins       []string        `toml:"cors_origins"`
	QuerySettle       string          `toml:"query_settle"`
	SetPreDelay       string          `toml:"set_pre_delay"`
	SetPostDelay      string          `toml:"set_post_delay"`
	ReadTimeout       string          `toml:"read_timeout"`
	WriteTimeout      string          `toml:"write_timeout"`
	ValidateAddresses bool            `toml:"validate_addresses"`
	SerialGlobs       []string        `toml:"serial_globs"`
	Resources         []ResourceFile  `toml:"resources"`
	Simulated         []SimulatedFile `toml:"simulated"`
}

// ResourceFile is one statically listed instrument.
type ResourceFile struct {
	Address  string `toml:"address"`
	BaudRate uint   `toml:"baud_rate"`
	DataBits uint   `toml:"data_bits"`
	StopBits uint   `toml:"stop_bits"`
}

// SimulatedFile is one in-process instrument.
type SimulatedFile struct {
	Address   string            `toml:"address"`
	IDN       string            `toml:"idn"`
	Responses map[string]string `toml:"responses"`
}

// ConsoleFile is the on-disk operator console configuration.
type ConsoleFile struct {
	Transport          string `toml:"transport"`
	HubAddress         string `toml:"hub_address"`
	Channel            int    `toml:"channel"`
	ConnectTimeout     string `toml:"connect_timeout"`
	ReplyTimeout       string `toml:"reply_timeout"`
	DirectoryTimeout   string `toml:"directory_timeout"`
	SetPreDelay        string `toml:"set_pre_delay"`
	SetPostDelay       string `toml:"set_post_delay"`
	MaxConnectAttempts int    `toml:"max_connect_attempts"`
}

func LoadHubFile(path string) (HubFile, error) {
	var cfg HubFile
	if err := loadToml(path, &cfg); err != nil {
		return HubFile{}, err
	}
	if err := ValidateHubFile(cfg); err != nil {
		return HubFile{}, err
	}
	return cfg, nil
}

func LoadConsoleFile(path string) (ConsoleFile, error) {
	var cfg ConsoleFile
	if err := loadToml(path, &cfg); err != nil {
		return ConsoleFile{}, err
	}
	if err := ValidateConsoleFile(cfg); err != nil {
		return ConsoleFile{}, err
	}
	return cfg, nil
}

// loadToml decodes strictly; unknown keys are an error.
func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("config parse failed (%s): %w: %s", path, ErrInvalidConfig, strict.String())
		}
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateHubFile(cfg HubFile) error {
	if cfg.HubID != "" && strings.TrimSpace(cfg.HubID) == "" {
		return invalid("hub_id is blank")
	}
	if err := validateTransport(cfg.Transport, cfg.Channel); err != nil {
		return err
	}
	if normalizeKind(cfg.Transport) == transport.KindRFCOMM && strings.TrimSpace(cfg.Adapter) != "" {
		if _, err := transport.ParseBDAddr(cfg.Adapter); err != nil {
			return invalid("adapter: %v", err)
		}
	}
	for key, raw := range map[string]string{
		"query_settle":   cfg.QuerySettle,
		"set_pre_delay":  cfg.SetPreDelay,
		"set_post_delay": cfg.SetPostDelay,
		"read_timeout":   cfg.ReadTimeout,
		"write_timeout":  cfg.WriteTimeout,
	} {
		if _, err := ParseDuration(raw); err != nil {
			return invalid("%s: %v", key, err)
		}
	}
	for i, res := range cfg.Resources {
		if _, err := visa.ParseAddress(res.Address); err != nil {
			return invalid("resources[%d]: %v", i, err)
		}
	}
	for i, sim := range cfg.Simulated {
		addr, err := visa.ParseAddress(sim.Address)
		if err != nil {
			return invalid("simulated[%d]: %v", i, err)
		}
		if addr.Interface != visa.InterfaceSIM {
			return invalid("simulated[%d]: address %q must use the SIM interface", i, sim.Address)
		}
		if strings.Count(sim.IDN, ",") < 2 {
			return invalid("simulated[%d]: idn must be \"manufacturer,model,serial[,...]\"", i)
		}
	}
	return nil
}

func ValidateConsoleFile(cfg ConsoleFile) error {
	if err := validateTransport(cfg.Transport, cfg.Channel); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.HubAddress) == "" {
		return invalid("hub_address is required")
	}
	if normalizeKind(cfg.Transport) == transport.KindRFCOMM {
		if _, err := transport.ParseBDAddr(cfg.HubAddress); err != nil {
			return invalid("hub_address: %v", err)
		}
	}
	for key, raw := range map[string]string{
		"connect_timeout":   cfg.ConnectTimeout,
		"reply_timeout":     cfg.ReplyTimeout,
		"directory_timeout": cfg.DirectoryTimeout,
		"set_pre_delay":     cfg.SetPreDelay,
		"set_post_delay":    cfg.SetPostDelay,
	} {
		if _, err := ParseDuration(raw); err != nil {
			return invalid("%s: %v", key, err)
		}
	}
	if cfg.MaxConnectAttempts < 0 {
		return invalid("max_connect_attempts must not be negative")
	}
	return nil
}

// ParseDuration accepts an empty string as zero.
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", raw)
	}
	return d, nil
}

// ManagerConfig converts the instrument sections of a hub file.
func ManagerConfig(cfg HubFile) visa.ManagerConfig {
	out := visa.ManagerConfig{
		SerialGlobs: append([]string(nil), cfg.SerialGlobs...),
	}
	for _, res := range cfg.Resources {
		out.Resources = append(out.Resources, visa.ResourceConfig{
			Address: strings.TrimSpace(res.Address),
			Serial: visa.SerialConfig{
				BaudRate: res.BaudRate,
				DataBits: res.DataBits,
				StopBits: res.StopBits,
			},
		})
	}
	for _, sim := range cfg.Simulated {
		out.Simulated = append(out.Simulated, visa.SimulatedInstrument{
			Address:   strings.TrimSpace(sim.Address),
			IDN:       sim.IDN,
			Responses: sim.Responses,
		})
	}
	return out
}

func validateTransport(kind string, channel int) error {
	switch normalizeKind(kind) {
	case transport.KindRFCOMM:
		if channel != 0 && (channel < 1 || channel > 30) {
			return invalid("channel %d out of rfcomm range 1-30", channel)
		}
	case transport.KindTCP:
		if channel < 0 || channel > 65535 {
			return invalid("channel %d out of tcp port range", channel)
		}
	default:
		return invalid("unknown transport %q", kind)
	}
	return nil
}

func normalizeKind(kind string) string {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		return transport.KindRFCOMM
	}
	return kind
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
