// Package discovery announces the host command surface over mDNS/DNS-SD,
// grounded directly on the teacher's dns_sd.go (which announces a
// KISS-over-TCP service via github.com/brutella/dnssd) so host tooling can
// find a node without a hardcoded IP.
package discovery

import (
	"context"
	"fmt"

	"github.com/brutella/dnssd"

	"github.com/wmac/upper-mac/internal/wlog"
)

// ServiceType is the DNS-SD service type for the host command surface,
// mirroring dns_sd.go's DNS_SD_SERVICE constant.
const ServiceType = "_wlan-exp._tcp"

// Announcer runs one DNS-SD responder advertising this node's host command
// port on the local network.
type Announcer struct {
	responder dnssd.Responder
	log       *wlog.Logger
}

// Announce creates and registers a service named name (or a generated
// default if empty) on port, mirroring dns_sd_announce's
// Config/NewService/NewResponder/Add sequence.
func Announce(name string, port int) (*Announcer, error) {
	if name == "" {
		name = defaultServiceName()
	}
	cfg := dnssd.Config{
		Name: name,
		Type: ServiceType,
		Port: port,
	}
	sv, err := dnssd.NewService(cfg)
	if err != nil {
		return nil, fmt.Errorf("discovery: new service: %w", err)
	}
	rp, err := dnssd.NewResponder()
	if err != nil {
		return nil, fmt.Errorf("discovery: new responder: %w", err)
	}
	if _, err := rp.Add(sv); err != nil {
		return nil, fmt.Errorf("discovery: add service: %w", err)
	}
	return &Announcer{responder: rp, log: wlog.Default("hostcmd.discovery")}, nil
}

// Run blocks serving mDNS responses until ctx is cancelled, mirroring the
// teacher's "go func() { rp.Respond(...) }()" but left to the caller to
// run on its own goroutine.
func (a *Announcer) Run(ctx context.Context) error {
	if err := a.responder.Respond(ctx); err != nil {
		a.log.Error("responder stopped", "err", err)
		return err
	}
	return nil
}

func defaultServiceName() string {
	return "wmac-node"
}
