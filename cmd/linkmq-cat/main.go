// Command linkmq-cat is an interactive line client for linkmq links.
//
// Every line typed is sent to all connections; received data is printed
// with the connection ID in front. The connection is re-established
// whenever it drops.
//
// Usage:
//
//	linkmq-cat [flags] <address>...
//
// Flags:
//
//	-listen string       Also accept connections on this address
//	-tls                 Use TLS
//	-tls-ca string       Trusted CA bundle (PEM)
//	-tls-verify string   Server verification: none, optional, required
//	-server-name string  Host name checked in the server certificate
//	-reconnect duration  Reconnect interval (default 3s)
//	-hex                 Print received data as hex
//	-log-level string    Log level: debug, info, warn, error (default "warn")
//
// Commands typed at the prompt:
//
//	/list         List connections
//	/close <id>   Close a connection
//	/quit         Exit
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chzyer/readline"

	"github.com/linkmq/linkmq-go/pkg/config"
	"github.com/linkmq/linkmq-go/pkg/link"
)

var (
	listen     = flag.String("listen", "", "Also accept connections on this address")
	useTLS     = flag.Bool("tls", false, "Use TLS")
	tlsCA      = flag.String("tls-ca", "", "Trusted CA bundle (PEM)")
	tlsVerify  = flag.String("tls-verify", "", "Server verification: none, optional, required")
	serverName = flag.String("server-name", "", "Host name checked in the server certificate")
	reconnect  = flag.Duration("reconnect", 0, "Reconnect interval (default 3s)")
	hexOut     = flag.Bool("hex", false, "Print received data as hex")
	logLevel   = flag.String("log-level", "warn", "Log level: debug, info, warn, error")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: linkmq-cat [flags] <address>...\n\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 && *listen == "" {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(addresses []string) error {
	level, err := config.ParseLevel(*logLevel)
	if err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	cfg := link.DefaultConfig()
	if *reconnect != 0 {
		cfg.ReconnectInterval = *reconnect
	}
	cfg.Logger = slog.New(slog.NewTextHandler(rl.Stderr(), &slog.HandlerOptions{Level: level}))

	l, err := link.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := l.Cleanup(); err != nil {
			fmt.Fprintf(rl.Stderr(), "cleanup: %v\n", err)
		}
	}()

	var tlsCfg *link.TLSConfig
	if *useTLS {
		tlsCfg = &link.TLSConfig{
			CAFile:     *tlsCA,
			Verify:     link.VerifyMode(*tlsVerify),
			ServerName: *serverName,
		}
	}

	if *listen != "" {
		// Listeners need a certificate, so accepted connections are plain.
		if _, err := l.AddListener(*listen, nil); err != nil {
			return err
		}
	}
	for _, a := range addresses {
		if _, err := l.AddConnector(a, 0, tlsCfg); err != nil {
			return err
		}
	}

	s := newSession(l, rl.Stdout(), *hexOut)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	go func() {
		for {
			line, err := rl.Readline()
			if err == readline.ErrInterrupt {
				continue
			}
			if err != nil {
				s.submit("/quit")
				return
			}
			s.submit(line)
		}
	}()

	return l.Run(ctx, link.RunConfig{})
}
