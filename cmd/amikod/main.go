// Command amikod runs one amiko payment node: it loads configuration,
// wires up logging, persistence, metrics and a settlement backend,
// restores (or creates) a Node, and serves both a payment-protocol TCP
// listener and a Prometheus metrics endpoint until signalled to stop.
//
// Grounded on lnd.go's Main: load config, init logging, construct the
// long-lived components, serve, wait for an interrupt.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/amikopay/amiko/amlog"
	"github.com/amikopay/amiko/config"
	"github.com/amikopay/amiko/crypto"
	"github.com/amikopay/amiko/metrics"
	"github.com/amikopay/amiko/node"
	"github.com/amikopay/amiko/persist"
	"github.com/amikopay/amiko/settlement"
	"github.com/amikopay/amiko/transport"
	systemdDaemon "github.com/coreos/go-systemd/daemon"
	"github.com/lightningnetwork/lnd/clock"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "amikod: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := amlog.InitLogRotator(cfg.LogFilePath(), cfg.MaxLogFileKB, cfg.MaxLogFiles); err != nil {
		return fmt.Errorf("initializing log rotator: %w", err)
	}
	amlog.UseLoggers()
	amlog.SetLevels(cfg.LogLevel)
	node.UseLogger(amlog.Node())

	store := persist.NewStore(cfg.StatePath())
	clk := clock.NewDefaultClock()
	cr := cryptoCapability()
	backend := settlement.NewManualBackend(0)
	reg, gatherer := metrics.NewRegistry()

	n, remotes, err := node.Restore(nodeID(cfg), store, clk, cr, backend, reg)
	if err != nil {
		return fmt.Errorf("restoring node state: %w", err)
	}

	dialer := &transport.TCPDialer{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, lr := range remotes {
		if lr.RemoteURL == "" {
			amlog.Node().Warnf("link %s has no remote URL on record, skipping reconnect", lr.Name)
			continue
		}
		tr, err := dialer.Dial(ctx, lr.RemoteURL)
		if err != nil {
			amlog.Node().Errorf("reconnecting link %s to %s: %v", lr.Name, lr.RemoteURL, err)
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
	defer n.Stop()

	listenAddr := fmt.Sprintf("%s:%d", cfg.ListenHost, cfg.ListenPort)
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", listenAddr, err)
	}
	defer listener.Close()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return acceptLoop(gctx, listener, n)
	})

	var metricsServer *http.Server
	if cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(gatherer))
		metricsServer = &http.Server{Addr: cfg.MetricsListen, Handler: mux}
		group.Go(func() error {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	if sent, err := systemdDaemon.SdNotify(false, systemdDaemon.SdNotifyReady); err != nil {
		amlog.Node().Warnf("systemd notify failed: %v", err)
	} else if sent {
		amlog.Node().Infof("notified systemd of readiness")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		amlog.Node().Infof("received %s, shutting down", sig)
	case <-gctx.Done():
	}

	cancel()
	listener.Close()
	if metricsServer != nil {
		metricsServer.Close()
	}
	if err := n.Persist(); err != nil {
		amlog.Node().Errorf("final persist on shutdown: %v", err)
	}
	_ = group.Wait()
	return nil
}

// acceptLoop accepts inbound neighbor connections and hands each one
// to the node: its first message decides whether it's a payer opening
// a new payment session (handled by Node.Accept) or a neighbor's Link
// reconnecting with a prior session already on record, in which case
// amikod has no way to know which Link it belongs to until one
// arrives and is rejected — reconnection of an existing Link is
// dialed outbound at startup above, never accepted inbound, so every
// accepted connection here is assumed to be a fresh payer session.
func acceptLoop(ctx context.Context, listener net.Listener, n *node.Node) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}
		n.Accept(transport.NewTCPTransport(conn))
	}
}

func nodeID(cfg *config.Config) string {
	if cfg.DebugToken != "" {
		return cfg.DebugToken
	}
	return fmt.Sprintf("%s:%d", cfg.ListenHost, cfg.ListenPort)
}

func cryptoCapability() crypto.Capability {
	return crypto.Default{}
}
