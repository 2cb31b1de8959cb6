// Command wmacnode is the boot entry point for one upper-MAC node process:
// parse flags/config, build the radio/Ethernet platform collaborators,
// wire up internal/node, announce the host command surface over DNS-SD,
// and run until interrupted. Mirrors cmd/direwolf/main.go's
// config-file-then-flag-overrides composition root, scaled down from a
// multi-audio-channel TNC to one MAC role per process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/wmac/upper-mac/internal/config"
	"github.com/wmac/upper-mac/internal/hostcmd/discovery"
	"github.com/wmac/upper-mac/internal/node"
	"github.com/wmac/upper-mac/internal/platform"
	"github.com/wmac/upper-mac/internal/platform/ethraw"
	"github.com/wmac/upper-mac/internal/platform/radiorig"
	"github.com/wmac/upper-mac/internal/wlog"
)

func main() {
	log := wlog.Default("main")

	configFile := pflag.StringP("config-file", "f", "", "YAML configuration file.")
	noRadio := pflag.Bool("no-radio", false, "Skip hamlib radio-plane setup (bench testing without a rig).")
	noDiscovery := pflag.Bool("no-discovery", false, "Skip DNS-SD announcement of the host command surface.")

	cfg, err := config.Load(earlyConfigFile())
	if err != nil {
		log.Error("loading config", "err", err)
		os.Exit(1)
	}
	config.RegisterFlags(pflag.CommandLine, &cfg)
	pflag.Parse()

	if *configFile != "" {
		cfg, err = config.Load(*configFile)
		if err != nil {
			log.Error("loading config file", "path", *configFile, "err", err)
			os.Exit(1)
		}
		config.RegisterFlags(pflag.CommandLine, &cfg)
		pflag.Parse()
	}

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	var radio platform.RadioPlane
	if !*noRadio && cfg.RadioModel != 0 {
		rig, err := radiorig.Open(cfg.RadioModel, cfg.RadioPort, nil)
		if err != nil {
			log.Error("opening radio", "err", err)
			os.Exit(1)
		}
		defer rig.Close()
		radio = rig
	}

	var eth platform.EthernetPlane
	if cfg.Interface != "" {
		sock, err := ethraw.Open(cfg.Interface)
		if err != nil {
			log.Error("opening ethernet interface", "interface", cfg.Interface, "err", err)
			os.Exit(1)
		}
		defer sock.Close()
		eth = sock
	}

	n, err := node.New(cfg, radio, eth)
	if err != nil {
		log.Error("building node", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !*noDiscovery {
		announcer, err := discovery.Announce(cfg.DNSSDName, cfg.HostCmdPort)
		if err != nil {
			log.Error("DNS-SD announce failed, continuing without it", "err", err)
		} else {
			go func() {
				if err := announcer.Run(ctx); err != nil && ctx.Err() == nil {
					log.Error("DNS-SD responder stopped", "err", err)
				}
			}()
		}
	}

	log.Info("node starting", "role", cfg.Role, "ssid", cfg.SSID, "channel", cfg.Channel)
	if err := n.Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, "node exited:", err)
		os.Exit(1)
	}
}

// earlyConfigFile scans os.Args by hand for -f/--config-file before pflag
// has been set up, since the config file's own contents need to seed the
// flag defaults that pflag.Parse then overrides.
func earlyConfigFile() string {
	for i, arg := range os.Args {
		if arg == "-f" || arg == "--config-file" {
			if i+1 < len(os.Args) {
				return os.Args[i+1]
			}
		}
	}
	return ""
}
