package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	KindHub     = "hub"
	KindConsole = "console"
)

const hubHeader = `# scpibridge hub configuration
#
# transport: "rfcomm" (adapter = local BD address, empty for any) or "tcp" (bind host).
# channel: RFCOMM channel or TCP port.
# query_settle / set_pre_delay / set_post_delay: fixed pacing around instrument I/O.
# read_timeout: bound on one instrument read; expiry is reported as an instrument error.
# write_timeout: bound on one frame written to the operator.

`

const consoleHeader = `# scpibridge operator console configuration
#
# hub_address: hub BD address (rfcomm) or host (tcp).
# reply_timeout: wait for a query reply; each Set queued ahead of the query
#   adds set_pre_delay + set_post_delay, which should match the hub's values.
# directory_timeout: wait for the instrument directory; "0s" waits until Ctrl-C.

`

// DefaultHubFile is the hub template: a simulated meter so a fresh install
// has something to talk to.
func DefaultHubFile() HubFile {
	return HubFile{
		HubID:             "hub.local",
		Transport:         "rfcomm",
		Channel:           4,
		QuerySettle:       "10s",
		SetPreDelay:       "2s",
		SetPostDelay:      "2s",
		ReadTimeout:       "15s",
		WriteTimeout:      "15s",
		ValidateAddresses: true,
		SerialGlobs:       []string{"/dev/ttyUSB*"},
		Resources: []ResourceFile{
			{Address: "TCPIP0::192.168.1.50::5025::SOCKET"},
		},
		Simulated: []SimulatedFile{
			{
				Address:   "SIM::DMM0::INSTR",
				IDN:       "Simulated,DMM-1000,SIM0001,1.0",
				Responses: map[string]string{"MEAS:VOLT?": "1.234"},
			},
		},
	}
}

func DefaultConsoleFile() ConsoleFile {
	return ConsoleFile{
		Transport:          "rfcomm",
		HubAddress:         "00:00:00:00:00:01",
		Channel:            4,
		ConnectTimeout:     "10s",
		ReplyTimeout:       "60s",
		DirectoryTimeout:   "0s",
		SetPreDelay:        "2s",
		SetPostDelay:       "2s",
		MaxConnectAttempts: 5,
	}
}

func Template(kind string) (string, error) {
	var (
		header string
		body   any
	)
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindHub:
		header, body = hubHeader, DefaultHubFile()
	case KindConsole:
		header, body = consoleHeader, DefaultConsoleFile()
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
	data, err := toml.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("render %s template: %w", kind, err)
	}
	return header + string(data), nil
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
