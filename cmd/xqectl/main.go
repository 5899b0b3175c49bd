// Command xqectl is a thin client for xqed's control-plane protocol: it
// dials the server, sends one PING/STATS/PLAN_CACHE_STATS/DIAG command,
// and renders the reply as a two-column markdown table.
package main

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/relcore/xqe/internal/wire"
	"github.com/relcore/xqe/internal/xproto"
)

var (
	flagAddr    string
	flagTimeout time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "xqectl",
		Short: "control-plane client for xqed",
	}
	root.PersistentFlags().StringVar(&flagAddr, "addr", "localhost:1523", "xqed address to connect to")
	root.PersistentFlags().DurationVar(&flagTimeout, "timeout", 5*time.Second, "connection and round-trip timeout")

	root.AddCommand(
		commandFor("ping", xproto.FuncPing),
		commandFor("stats", xproto.FuncStats),
		commandFor("plancache", xproto.FuncPlanCacheStats),
		commandFor("diag", xproto.FuncDiag),
		commandFor("s2s", xproto.FuncS2SStats),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}

func commandFor(use string, code xproto.FunctionCode) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("send a %s command", code),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, keys, err := send(code, nil)
			if err != nil {
				return err
			}
			printFields(fields, keys)
			return nil
		},
	}
}

func send(code xproto.FunctionCode, body []byte) (map[string]string, []string, error) {
	conn, err := net.DialTimeout("tcp", flagAddr, flagTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("xqectl: dial %s: %w", flagAddr, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(flagTimeout))

	req := wire.Header{Type: wire.Command, FunctionCode: uint32(code), RequestID: 1}
	if err := wire.WritePacket(conn, req, body); err != nil {
		return nil, nil, fmt.Errorf("xqectl: write request: %w", err)
	}

	h, reply, err := wire.ReadPacket(conn)
	if err != nil {
		return nil, nil, fmt.Errorf("xqectl: read reply: %w", err)
	}
	if h.Type != wire.Data {
		return nil, nil, fmt.Errorf("xqectl: unexpected reply type %s", h.Type)
	}

	_ = wire.WritePacket(conn, wire.Header{Type: wire.Close}, nil)
	return xproto.DecodeFields(reply)
}

// printFields renders a command reply as a markdown key/value table,
// the same renderer datalog query results print through, with the
// reply's own key as the row label colored to stand out in a terminal.
func printFields(fields map[string]string, keys []string) {
	var b strings.Builder
	table := tablewriter.NewTable(&b,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment([]tw.Align{tw.AlignLeft, tw.AlignRight}),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header([]string{"field", "value"})
	for _, k := range keys {
		table.Append([]string{color.CyanString(k), fields[k]})
	}
	table.Render()
	fmt.Print(b.String())
}
