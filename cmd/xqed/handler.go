package main

import (
	"net"
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/relcore/xqe/diag"
	"github.com/relcore/xqe/internal/wire"
	"github.com/relcore/xqe/internal/xproto"
	"github.com/relcore/xqe/plancache"
	"github.com/relcore/xqe/s2spool"
	"github.com/relcore/xqe/stats"
)

// server answers client commands against the live control-plane state.
// It does not itself run query plans -- there is no SQL front end wired
// to xasl from the network in this engine, only the C3-C6 control-plane
// services queries and tooling introspect.
type server struct {
	log      zerolog.Logger
	registry *stats.Registry
	exporter *stats.PrometheusExporter
	segment  *diag.Segment
	cache    *plancache.Cache
	s2s      *s2spool.Pool
	peers    map[uint32]string
}

// handleConn drives one accepted socket to completion: a CLOSE packet or
// a read error ends the loop and closes the socket; ABORT and MAGIC
// packets are skipped.
func (s *server) handleConn(netConn net.Conn) {
	defer netConn.Close()
	log := s.log.With().Str("remote", netConn.RemoteAddr().String()).Logger()
	log.Info().Msg("connection accepted")

	for {
		h, body, err := wire.ReadPacket(netConn)
		if err != nil {
			log.Debug().Err(err).Msg("connection closed")
			return
		}

		switch h.Type {
		case wire.Close:
			log.Info().Msg("client closed connection")
			return
		case wire.Abort:
			continue
		case wire.Magic:
			continue
		case wire.Command:
			reply := s.dispatch(xproto.FunctionCode(h.FunctionCode), body)
			replyHeader := wire.Header{
				Type:          wire.Data,
				FunctionCode:  h.FunctionCode,
				RequestID:     h.RequestID,
				TransactionID: h.TransactionID,
			}
			if err := wire.WritePacket(netConn, replyHeader, reply); err != nil {
				log.Debug().Err(err).Msg("write reply failed")
				return
			}
		default:
			log.Warn().Str("type", h.Type.String()).Msg("unexpected packet type from client")
		}
	}
}

func (s *server) dispatch(code xproto.FunctionCode, body []byte) []byte {
	switch code {
	case xproto.FuncPing:
		return xproto.EncodeFields([][2]string{{"reply", "pong"}})
	case xproto.FuncStats:
		return s.statsReply()
	case xproto.FuncPlanCacheStats:
		return s.planCacheReply()
	case xproto.FuncDiag:
		return s.diagReply()
	case xproto.FuncS2SStats:
		return s.s2sReply()
	default:
		return xproto.EncodeFields([][2]string{{"error", "unknown function code"}})
	}
}

func (s *server) statsReply() []byte {
	global := s.registry.Global()
	s.exporter.Export(global)

	pairs := make([][2]string, 0, stats.NumCounters()+1)
	for i := 0; i < stats.NumCounters(); i++ {
		c := stats.Counter(i)
		pairs = append(pairs, [2]string{c.String(), itoa64(global.Get(c))})
	}
	pairs = append(pairs, [2]string{"buffer_hit_ratio_x10000", itoa64(global.BufferHitRatioX10000())})
	return xproto.EncodeFields(pairs)
}

func (s *server) planCacheReply() []byte {
	hits, misses, size := s.cache.Stats()
	return xproto.EncodeFields([][2]string{
		{"entries", itoa64(uint64(size))},
		{"hits", itoa64(uint64(hits))},
		{"misses", itoa64(uint64(misses))},
	})
}

func (s *server) diagReply() []byte {
	if s.segment == nil {
		return xproto.EncodeFields([][2]string{{"enabled", "false"}})
	}
	row := s.segment.ReadRow(0)
	return xproto.EncodeFields([][2]string{
		{"enabled", "true"},
		{"server_name", s.segment.ServerName()},
		{"client_requests", itoa64(uint64(row.ClientRequests))},
		{"slow_queries", itoa64(uint64(row.SlowQueries))},
		{"full_scans", itoa64(uint64(row.FullScans))},
		{"lock_deadlocks", itoa64(uint64(row.LockDeadlocks))},
	})
}

// s2sReply reports the free/in-use outbound connection counts for every
// configured peer node, the pool state an operator tuning
// --max-s2s-per-node would want to see.
func (s *server) s2sReply() []byte {
	if len(s.peers) == 0 {
		return xproto.EncodeFields([][2]string{{"peers", "none configured"}})
	}
	nodeIDs := make([]uint32, 0, len(s.peers))
	for id := range s.peers {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Slice(nodeIDs, func(i, j int) bool { return nodeIDs[i] < nodeIDs[j] })

	pairs := make([][2]string, 0, len(nodeIDs)*2)
	for _, id := range nodeIDs {
		free, inUse := s.s2s.Stats(id)
		key := strconv.FormatUint(uint64(id), 10)
		pairs = append(pairs, [2]string{"node_" + key + "_free", itoa64(uint64(free))})
		pairs = append(pairs, [2]string{"node_" + key + "_in_use", itoa64(uint64(inUse))})
	}
	return xproto.EncodeFields(pairs)
}

func itoa64(v uint64) string {
	return strconv.FormatUint(v, 10)
}
