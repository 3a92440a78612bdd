// Command tkcli is a terminal client for the TecnoKaijin storefront.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/tecnokaijin/storefront/internal/client"
)

type command struct {
	usage string
	admin bool
	run   func(ctx context.Context, a *cli, args []string) error
}

var commands = map[string]command{
	"products": {"products [-category c] [-search s] [-min n] [-max n]", false, cmdProducts},
	"show":     {"show <product-id>", false, cmdShow},
	"register": {"register -name n -email e -password p", false, cmdRegister},
	"login":    {"login -email e -password p", false, cmdLogin},
	"logout":   {"logout", false, cmdLogout},
	"whoami":   {"whoami", false, cmdWhoami},
	"cart":     {"cart", false, cmdCart},
	"add":      {"add <product-id> [quantity]", false, cmdAdd},
	"set":      {"set <product-id> <quantity>", false, cmdSet},
	"remove":   {"remove <product-id>", false, cmdRemove},
	"clear":    {"clear", false, cmdClear},
	"checkout": {"checkout -name n -address a -city c -region r -phone p [-payment webpay|transfer]", false, cmdCheckout},
	"orders":   {"orders", false, cmdOrders},
	"browse":   {"browse", false, cmdBrowse},

	"all-orders":     {"all-orders", true, cmdAllOrders},
	"order-status":   {"order-status <order-id> <status>", true, cmdOrderStatus},
	"product-add":    {"product-add -name n -price p -category c -image url [-stock n] [-description d] [-specs s]", true, cmdProductAdd},
	"product-update": {"product-update <product-id> [-name n] [-price p] [-stock n] ...", true, cmdProductUpdate},
	"product-delete": {"product-delete <product-id>", true, cmdProductDelete},
	"users":          {"users", true, cmdUsers},
}

// cli is the state shared by every subcommand
type cli struct {
	out     io.Writer
	api     *client.Client
	state   stateDir
	session *session
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	global := flag.NewFlagSet("tkcli", flag.ContinueOnError)
	global.SetOutput(out)
	server := global.String("server", getenv("TK_SERVER", "http://localhost:8080"), "storefront base URL")
	state := global.String("state", defaultStateDir(), "directory for session.json and cart.json")
	global.Usage = func() { usage(out) }
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		usage(out)
		return nil
	}

	name := global.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		usage(out)
		return fmt.Errorf("unknown command %q", name)
	}

	a := &cli{out: out, state: stateDir(*state)}
	sess, err := a.state.loadSession()
	if err != nil {
		return err
	}
	a.session = sess
	a.api = client.New(*server, sess.Token)

	if cmd.admin && (sess.User == nil || !sess.User.IsAdmin()) {
		return errors.New("this command needs an administrator login")
	}
	return cmd.run(ctx, a, global.Args()[1:])
}

func usage(out io.Writer) {
	fmt.Fprintln(out, "usage: tkcli [-server url] [-state dir] <command> [args]")
	fmt.Fprintln(out)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, admin := range []bool{false, true} {
		if admin {
			fmt.Fprintln(out, "\nadministrator commands:")
		}
		for _, name := range names {
			if commands[name].admin == admin {
				fmt.Fprintf(out, "  %s\n", commands[name].usage)
			}
		}
	}
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
