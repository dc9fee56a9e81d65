package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/amikopay/amiko/amlog"
	"github.com/amikopay/amiko/config"
	"github.com/amikopay/amiko/crypto"
	"github.com/amikopay/amiko/metrics"
	"github.com/amikopay/amiko/node"
	"github.com/amikopay/amiko/persist"
	"github.com/amikopay/amiko/settlement"
	"github.com/amikopay/amiko/transport"
	"github.com/jessevdk/go-flags"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/urfave/cli"
)

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if cf := ctx.GlobalString("configfile"); cf != "" {
		cfg.ConfigFile = cf
	}

	if _, err := os.Stat(cfg.ConfigFile); err == nil {
		parser := flags.NewParser(cfg, flags.Default)
		if err := flags.NewIniParser(parser).ParseFile(cfg.ConfigFile); err != nil {
			return nil, fmt.Errorf("amikoctl: parsing %s: %w", cfg.ConfigFile, err)
		}
	}

	if dd := ctx.GlobalString("datadir"); dd != "" {
		cfg.DataDir = dd
	}
	return cfg, nil
}

// openNode restores a transient Node from cfg's data directory,
// reconnects every persisted Link over plain TCP, and starts its
// event loop. Callers must call closeNode when done.
func openNode(cfg *config.Config) (*node.Node, error) {
	amlog.UseLoggers()
	amlog.SetLevels(cfg.LogLevel)
	node.UseLogger(amlog.Node())

	store := persist.NewStore(cfg.StatePath())
	reg, _ := metrics.NewRegistry()

	n, remotes, err := node.Restore(
		fmt.Sprintf("%s:%d", cfg.ListenHost, cfg.ListenPort),
		store, clock.NewDefaultClock(), crypto.Default{},
		settlement.NewManualBackend(0), reg,
	)
	if err != nil {
		return nil, fmt.Errorf("amikoctl: restoring node: %w", err)
	}

	dialer := &transport.TCPDialer{Timeout: 10 * time.Second}
	ctx := context.Background()
	for _, lr := range remotes {
		if lr.RemoteURL == "" {
			continue
		}
		tr, err := dialer.Dial(ctx, lr.RemoteURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "amikoctl: warning: could not reconnect link %s: %v\n", lr.Name, err)
			continue
		}
		l, ok := n.Link(lr.Name)
		if !ok {
			tr.Close()
			continue
		}
		n.AddLink(l, tr)
	}

	n.Start()
	return n, nil
}

// closeNode persists n's state and stops its event loop. Every command
// must call this exactly once before exiting, so the next amikoctl
// invocation (or the next amikod start) sees an up to date file.
func closeNode(n *node.Node) {
	if err := n.Persist(); err != nil {
		fmt.Fprintf(os.Stderr, "amikoctl: warning: failed to persist state: %v\n", err)
	}
	n.Stop()
}
