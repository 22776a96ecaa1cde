package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/subcommands"

	"engine/internal/codec"
	"engine/internal/schema"
	"engine/pkg/uds"
)

const (
	defaultSocketPath = "/tmp/engine.sock"
	defaultAdminURL   = "http://localhost:8080"
	dialTimeout       = 3 * time.Second
)

var commands = []subcommands.Command{
	&cashCmd{},
	&balanceCmd{},
	&pingCmd{},
	&walletsCmd{},
}

// send writes one frame to the engine socket.
func send(ctx context.Context, socket string, t schema.MessageType, payload []byte) error {
	conn, err := dial(ctx, socket)
	if err != nil {
		return err
	}
	defer conn.Close()
	return codec.WriteFrame(conn, t, payload)
}

func dial(ctx context.Context, socket string) (net.Conn, error) {
	client, err := uds.NewClient(socket)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	return client.Dial(ctx)
}

type cashCmd struct {
	socket string
	id     string
	client string
	asset  string
	volume float64
}

func (*cashCmd) Name() string     { return "cash" }
func (*cashCmd) Synopsis() string { return "deposit to or withdraw from a wallet" }
func (*cashCmd) Usage() string {
	return `ledgerctl cash -client <id> -asset <id> -volume <amount> [-id <operation id>]

  Sends a cash in/out operation. A negative volume withdraws.
`
}

func (c *cashCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.socket, "socket", defaultSocketPath, "Engine socket path.")
	f.StringVar(&c.id, "id", "", "Business operation id used for duplicate detection.")
	f.StringVar(&c.client, "client", "", "Client id.")
	f.StringVar(&c.asset, "asset", "", "Asset id.")
	f.Float64Var(&c.volume, "volume", 0, "Signed amount.")
}

func (c *cashCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.client == "" || c.asset == "" {
		fmt.Fprintln(os.Stderr, "-client and -asset are required")
		return subcommands.ExitUsageError
	}
	payload := codec.EncodeCashInOutOperation(nil, schema.CashInOutOperation{
		ID:        c.id,
		ClientID:  c.client,
		AssetID:   c.asset,
		Volume:    c.volume,
		Timestamp: time.Now().UnixMilli(),
	})
	if err := send(ctx, c.socket, schema.MessageCashInOutOperation, payload); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type balanceCmd struct {
	socket string
	uid    int64
	client string
	asset  string
	amount float64
}

func (*balanceCmd) Name() string     { return "update-balance" }
func (*balanceCmd) Synopsis() string { return "overwrite a wallet balance" }
func (*balanceCmd) Usage() string {
	return `ledgerctl update-balance -client <id> -asset <id> -amount <amount>

  Sends a balance correction. The wallet balance becomes the given amount.
`
}

func (c *balanceCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.socket, "socket", defaultSocketPath, "Engine socket path.")
	f.Int64Var(&c.uid, "uid", 0, "Correction id.")
	f.StringVar(&c.client, "client", "", "Client id.")
	f.StringVar(&c.asset, "asset", "", "Asset id.")
	f.Float64Var(&c.amount, "amount", 0, "New balance.")
}

func (c *balanceCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.client == "" || c.asset == "" {
		fmt.Fprintln(os.Stderr, "-client and -asset are required")
		return subcommands.ExitUsageError
	}
	payload := codec.EncodeBalanceUpdate(nil, schema.BalanceUpdate{
		UID:      c.uid,
		ClientID: c.client,
		AssetID:  c.asset,
		Amount:   c.amount,
	})
	if err := send(ctx, c.socket, schema.MessageBalanceUpdate, payload); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type pingCmd struct {
	socket string
}

func (*pingCmd) Name() string     { return "ping" }
func (*pingCmd) Synopsis() string { return "check the engine socket answers" }
func (*pingCmd) Usage() string {
	return `ledgerctl ping [-socket <path>]
`
}

func (c *pingCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.socket, "socket", defaultSocketPath, "Engine socket path.")
}

func (c *pingCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	conn, err := dial(ctx, c.socket)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer conn.Close()

	start := time.Now()
	token := []byte(start.Format(time.RFC3339Nano))
	_ = conn.SetDeadline(start.Add(dialTimeout))
	if err := codec.WriteFrame(conn, schema.MessagePing, token); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	t, payload, err := codec.ReadFrame(bufio.NewReader(conn))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if t != schema.MessagePing || !bytes.Equal(payload, token) {
		fmt.Fprintf(os.Stderr, "unexpected reply %s\n", t)
		return subcommands.ExitFailure
	}
	fmt.Printf("pong in %s\n", time.Since(start))
	return subcommands.ExitSuccess
}

type walletsCmd struct {
	admin  string
	client string
}

func (*walletsCmd) Name() string     { return "wallets" }
func (*walletsCmd) Synopsis() string { return "print wallets from the admin endpoint" }
func (*walletsCmd) Usage() string {
	return `ledgerctl wallets [-admin <url>] [-client <id>]
`
}

func (c *walletsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.admin, "admin", defaultAdminURL, "Admin base URL.")
	f.StringVar(&c.client, "client", "", "Only this client.")
}

func (c *walletsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	url := c.admin + "/wallets"
	if c.client != "" {
		url += "/" + c.client
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "%s: %s\n", resp.Status, body)
		return subcommands.ExitFailure
	}

	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return subcommands.ExitSuccess
	}
	fmt.Println(out.String())
	return subcommands.ExitSuccess
}
