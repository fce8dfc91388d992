package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/VeltarosLabs/powledger/pkg/api"
	"github.com/VeltarosLabs/powledger/pkg/version"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "version":
		runVersion()
	case "chain":
		runChain(os.Args[2:])
	case "mine":
		runMine(os.Args[2:])
	case "tx":
		runTx(os.Args[2:])
	case "register":
		runRegister(os.Args[2:])
	case "resolve":
		runResolve(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Print(`powledger CLI

Usage:
  powledger-cli version
  powledger-cli chain    [--node <url>]
  powledger-cli mine     [--node <url>] [--key <api key>]
  powledger-cli tx       [--node <url>] --from <id> --to <id> --amount <n>
  powledger-cli register [--node <url>] [--key <api key>] <peer> [<peer> ...]
  powledger-cli resolve  [--node <url>] [--key <api key>]
  powledger-cli status   [--node <url>]

Notes:
  - --node defaults to $POWLEDGER_NODE or http://127.0.0.1:5000.
  - peers may be given as host:port or as a URL.
`)
}

type common struct {
	node    *string
	key     *string
	timeout *time.Duration
}

func commonFlags(fs *flag.FlagSet) common {
	def := strings.TrimSpace(os.Getenv("POWLEDGER_NODE"))
	if def == "" {
		def = "http://127.0.0.1:5000"
	}
	return common{
		node:    fs.String("node", def, "Node API base URL"),
		key:     fs.String("key", os.Getenv("POWLEDGER_API_KEY"), "API key for guarded routes"),
		timeout: fs.Duration("timeout", 3*time.Minute, "Request timeout"),
	}
}

func (c common) client() (*api.Client, context.Context, context.CancelFunc) {
	cl, err := api.New(*c.node, api.WithAPIKey(*c.key))
	if err != nil {
		fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), *c.timeout)
	return cl, ctx, cancel
}

func runVersion() {
	v := version.Get()
	fmt.Printf("powledger CLI\nVersion: %s\nCommit:  %s\nGo:      %s\nTarget:  %s\n",
		v.Version, v.Commit, v.GoVersion, v.Platform)
}

func runChain(args []string) {
	fs := flag.NewFlagSet("chain", flag.ExitOnError)
	c := commonFlags(fs)
	_ = fs.Parse(args)

	cl, ctx, cancel := c.client()
	defer cancel()
	out, err := cl.Chain(ctx)
	if err != nil {
		fatal(err)
	}
	printJSON(out)
}

func runMine(args []string) {
	fs := flag.NewFlagSet("mine", flag.ExitOnError)
	c := commonFlags(fs)
	_ = fs.Parse(args)

	cl, ctx, cancel := c.client()
	defer cancel()
	out, err := cl.Mine(ctx)
	if err != nil {
		fatal(err)
	}
	printJSON(out)
}

func runTx(args []string) {
	fs := flag.NewFlagSet("tx", flag.ExitOnError)
	c := commonFlags(fs)
	from := fs.String("from", "", "Sender identifier")
	to := fs.String("to", "", "Recipient identifier")
	amount := fs.Int64("amount", 0, "Amount")
	_ = fs.Parse(args)

	if strings.TrimSpace(*from) == "" || strings.TrimSpace(*to) == "" {
		fatal(fmt.Errorf("--from and --to are required"))
	}

	cl, ctx, cancel := c.client()
	defer cancel()
	out, err := cl.NewTransaction(ctx, api.TransactionRequest{
		Sender:    strings.TrimSpace(*from),
		Recipient: strings.TrimSpace(*to),
		Amount:    *amount,
	})
	if err != nil {
		fatal(err)
	}
	printJSON(out)
}

func runRegister(args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	c := commonFlags(fs)
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		fatal(fmt.Errorf("at least one peer address is required"))
	}

	cl, ctx, cancel := c.client()
	defer cancel()
	out, err := cl.RegisterNodes(ctx, fs.Args())
	if err != nil {
		fatal(err)
	}
	printJSON(out)
}

func runResolve(args []string) {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	c := commonFlags(fs)
	_ = fs.Parse(args)

	cl, ctx, cancel := c.client()
	defer cancel()
	out, err := cl.Resolve(ctx)
	if err != nil {
		fatal(err)
	}
	printJSON(out)
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	c := commonFlags(fs)
	_ = fs.Parse(args)

	cl, ctx, cancel := c.client()
	defer cancel()
	out, err := cl.Status(ctx)
	if err != nil {
		fatal(err)
	}
	printJSON(out)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	_, _ = fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
