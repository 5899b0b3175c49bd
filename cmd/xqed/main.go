// Command xqed is the engine's control-plane server: it accepts
// multiplexed client and server-to-server connections over the wire
// packet protocol, answers PING/STATS/PLAN_CACHE_STATS/DIAG commands
// against the live stats registry, plan cache, and diagnostic segment,
// and exports the global stats aggregate as Prometheus gauges.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/relcore/xqe/diag"
	"github.com/relcore/xqe/internal/config"
	"github.com/relcore/xqe/internal/wire"
	"github.com/relcore/xqe/internal/xlog"
	"github.com/relcore/xqe/internal/xproto"
	"github.com/relcore/xqe/netmux"
	"github.com/relcore/xqe/plancache"
	"github.com/relcore/xqe/s2spool"
	"github.com/relcore/xqe/stats"
)

var (
	flagAddr          string
	flagMetricsAddr   string
	flagConfigPath    string
	flagDBPath        string
	flagServerName    string
	flagThreads       int
	flagNodeID        uint32
	flagMaxS2SPerNode int
	flagPlanEntries   int
	flagPlanTTL       time.Duration
	flagPeers         []string
	flagLogLevel      string
	flagLogJSON       bool
)

func main() {
	root := &cobra.Command{
		Use:   "xqed",
		Short: "xqe query engine control-plane server",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "accept client and server-to-server connections",
		RunE:  runServe,
	}
	serve.Flags().StringVar(&flagAddr, "addr", ":1523", "address to accept client/s2s connections on")
	serve.Flags().StringVar(&flagMetricsAddr, "metrics-addr", ":9090", "address to serve /metrics on")
	serve.Flags().StringVar(&flagConfigPath, "config", "", "path to an engine config file (internal/config format); unset uses documented defaults")
	serve.Flags().StringVar(&flagDBPath, "db-path", "xqe", "database path used to derive the diagnostic segment key")
	serve.Flags().StringVar(&flagServerName, "server-name", "xqed", "server name recorded in the diagnostic segment")
	serve.Flags().IntVar(&flagThreads, "threads", 8, "worker thread count, sizes the diagnostic segment")
	serve.Flags().Uint32Var(&flagNodeID, "node-id", 1, "this server's node id, used when redirecting s2s traffic")
	serve.Flags().IntVar(&flagMaxS2SPerNode, "max-s2s-per-node", 4, "bound on outbound s2s connections per remote node")
	serve.Flags().IntVar(&flagPlanEntries, "plan-cache-entries", 1000, "max live plan cache entries")
	serve.Flags().DurationVar(&flagPlanTTL, "plan-cache-ttl", 5*time.Minute, "plan cache entry idle eviction TTL")
	serve.Flags().StringArrayVar(&flagPeers, "peer", nil, "node_id=host:port entries for s2s dialing, repeatable")
	serve.Flags().StringVar(&flagLogLevel, "log-level", "info", "debug|info|warn|error")
	serve.Flags().BoolVar(&flagLogJSON, "log-json", false, "emit structured JSON logs instead of console output")

	root.AddCommand(serve)
	root.AddCommand(versionCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the server version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("xqed (xqe control-plane server)")
		},
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if flagConfigPath != "" {
		loaded, err := config.Load(flagConfigPath)
		if err != nil {
			return fmt.Errorf("xqed: %w", err)
		}
		cfg = loaded
	}

	xlog.Init(xlog.Config{Level: xlog.Level(flagLogLevel), JSONOutput: flagLogJSON})
	log := xlog.Component("xqed")

	peers, err := parsePeers(flagPeers)
	if err != nil {
		return fmt.Errorf("xqed: %w", err)
	}

	registry := stats.New(func(n stats.Notification) {
		log.Warn().
			Str("counter", n.Counter.String()).
			Int("tran_index", n.TranIndex).
			Uint64("value", n.Value).
			Msg("statistics threshold exceeded")
	})

	reg := prometheus.NewRegistry()
	exporter := stats.NewPrometheusExporter(reg)

	var segment *diag.Segment
	if cfg.ExecuteDiag {
		segment = diag.NewSegment(flagDBPath, flagServerName, flagThreads)
		log.Info().Uint32("key", segment.Key()).Msg("diagnostic segment active")
	}

	cache := plancache.New(flagPlanEntries, flagPlanTTL, 0)

	dialer := func(nodeID uint32, dbName string) (*netmux.Connection, error) {
		addr, ok := peers[nodeID]
		if !ok {
			return nil, fmt.Errorf("xqed: no peer address configured for node %d", nodeID)
		}
		netConn, err := net.Dial("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("xqed: dial node %d: %w", nodeID, err)
		}
		if err := wire.WritePacket(netConn, wire.Header{Type: wire.Magic, NodeID: flagNodeID}, wire.MagicPayload); err != nil {
			netConn.Close()
			return nil, fmt.Errorf("xqed: magic handshake to node %d: %w", nodeID, err)
		}
		body := xproto.EncodeFields([][2]string{{"db", dbName}})
		if err := wire.WritePacket(netConn, wire.Header{Type: wire.Command, NodeID: flagNodeID}, body); err != nil {
			netConn.Close()
			return nil, fmt.Errorf("xqed: data request to node %d: %w", nodeID, err)
		}
		conn := netmux.New()
		go pumpIncoming(netConn, conn)
		return conn, nil
	}
	pool := s2spool.New(flagMaxS2SPerNode, flagDBPath, dialer, func(tranIdx int, conn *netmux.Connection) {
		log.Debug().Int("tran_index", tranIdx).Msg("s2s connection bound to transaction")
	})

	srv := &server{
		log:      log,
		registry: registry,
		exporter: exporter,
		segment:  segment,
		cache:    cache,
		s2s:      pool,
		peers:    peers,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: flagMetricsAddr, Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	ln, err := net.Listen("tcp", flagAddr)
	if err != nil {
		return fmt.Errorf("xqed: listen %s: %w", flagAddr, err)
	}
	log.Info().Str("addr", flagAddr).Str("metrics_addr", flagMetricsAddr).Msg("xqed listening")

	var wg sync.WaitGroup
	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		ln.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsSrv.Shutdown(shutdownCtx)
	}()

	for {
		netConn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				wg.Wait()
				return nil
			default:
				return fmt.Errorf("xqed: accept: %w", err)
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			srv.handleConn(netConn)
		}()
	}
}

func parsePeers(entries []string) (map[uint32]string, error) {
	out := make(map[uint32]string, len(entries))
	for _, e := range entries {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed --peer %q, want node_id=host:port", e)
		}
		id, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("malformed --peer node id %q: %w", parts[0], err)
		}
		out[uint32(id)] = parts[1]
	}
	return out, nil
}

// pumpIncoming reads packets off a dialed s2s socket and feeds them into
// the connection's multiplexer so WaitForData callers can observe them.
func pumpIncoming(netConn net.Conn, conn *netmux.Connection) {
	defer netConn.Close()
	for {
		h, body, err := wire.ReadPacket(netConn)
		if err != nil {
			conn.Close()
			return
		}
		if err := conn.HandlePacket(h, body); err != nil {
			conn.Close()
			return
		}
	}
}
