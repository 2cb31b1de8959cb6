// Package config is the boot-time configuration layer: a YAML file
// (gopkg.in/yaml.v3) overridable by command-line flags
// (github.com/spf13/pflag), replacing the teacher's hand-rolled
// config.go text format and cmd/direwolf's long pflag.*P flag list with
// the idiomatic "struct tags + flag overrides" shape used throughout the
// rest of this module's ambient stack.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Role selects which role FSM (spec §4.12) a node boots into.
type Role string

const (
	RoleAP   Role = "ap"
	RoleSTA  Role = "sta"
	RoleIBSS Role = "ibss"
)

// Node is the top-level boot configuration for one wmacnode process.
type Node struct {
	Role Role `yaml:"role"`

	Interface string `yaml:"interface"` // Ethernet plane device name

	SelfAddr       string `yaml:"self_addr"` // this node's own MAC address
	BSSID          string `yaml:"bssid"`      // AP/IBSS: own BSSID. STA: target BSSID to join.
	SSID           string `yaml:"ssid"`
	Channel        int    `yaml:"channel"`
	BeaconInterval int    `yaml:"beacon_interval_tu"`
	DTIMPeriod     int    `yaml:"dtim_period"`

	MaxAssociations int `yaml:"max_associations"`

	RadioModel int    `yaml:"radio_model"`
	RadioPort  string `yaml:"radio_port"`

	HostCmdPort  int    `yaml:"hostcmd_port"`
	DNSSDName    string `yaml:"dns_sd_name"`
	LogCapacity  int    `yaml:"log_capacity"`
}

// Default returns the configuration a node boots with before a file or
// flags are applied.
func Default() Node {
	return Node{
		Role:            RoleAP,
		Channel:         6,
		BeaconInterval:  100,
		DTIMPeriod:      1,
		MaxAssociations: 8,
		HostCmdPort:     12345,
		LogCapacity:     4096,
	}
}

// Load reads path (if non-empty) as YAML over Default(). Call
// RegisterFlags on the result before fs.Parse so command-line flags take
// final precedence over the YAML file.
func Load(path string) (Node, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Node{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Node{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// RegisterFlags binds fs's flags to cfg's fields, mirroring
// cmd/direwolf/main.go's pflag.*P declarations but scoped to this node's
// much smaller surface. fs.Parse must run after this call for overrides to
// take effect, and cfg must outlive the FlagSet.
func RegisterFlags(fs *pflag.FlagSet, cfg *Node) {
	fs.StringVarP((*string)(&cfg.Role), "role", "r", string(cfg.Role), "Role: ap, sta, or ibss.")
	fs.StringVarP(&cfg.Interface, "interface", "i", cfg.Interface, "Ethernet plane interface name.")
	fs.StringVar(&cfg.SelfAddr, "self-addr", cfg.SelfAddr, "This node's own MAC address.")
	fs.StringVarP(&cfg.BSSID, "bssid", "b", cfg.BSSID, "BSSID (AP/IBSS) or target BSSID (STA).")
	fs.StringVarP(&cfg.SSID, "ssid", "s", cfg.SSID, "SSID.")
	fs.IntVarP(&cfg.Channel, "channel", "c", cfg.Channel, "802.11 channel number.")
	fs.IntVar(&cfg.BeaconInterval, "beacon-interval", cfg.BeaconInterval, "Beacon interval, in TU (1024us).")
	fs.IntVar(&cfg.DTIMPeriod, "dtim-period", cfg.DTIMPeriod, "DTIM period, in beacon intervals.")
	fs.IntVar(&cfg.MaxAssociations, "max-associations", cfg.MaxAssociations, "Maximum associated stations (AP only).")
	fs.IntVar(&cfg.RadioModel, "radio-model", cfg.RadioModel, "hamlib rig model number, 0 for simulated/none.")
	fs.StringVar(&cfg.RadioPort, "radio-port", cfg.RadioPort, "hamlib rig control port.")
	fs.IntVar(&cfg.HostCmdPort, "hostcmd-port", cfg.HostCmdPort, "Host command surface TCP port.")
	fs.StringVar(&cfg.DNSSDName, "dns-sd-name", cfg.DNSSDName, "DNS-SD service name; default generated if empty.")
	fs.IntVar(&cfg.LogCapacity, "log-capacity", cfg.LogCapacity, "Ring-buffer capacity of the event log.")
}

// Validate reports whether cfg is internally consistent enough to boot.
func (n Node) Validate() error {
	switch n.Role {
	case RoleAP, RoleSTA, RoleIBSS:
	default:
		return fmt.Errorf("config: unknown role %q", n.Role)
	}
	if n.Channel < 1 || n.Channel > 14 {
		return fmt.Errorf("config: channel %d out of range 1-14", n.Channel)
	}
	if n.Role == RoleAP && n.MaxAssociations <= 0 {
		return fmt.Errorf("config: max_associations must be positive for role ap")
	}
	return nil
}
