// Command simclient joins a simulation lobby from the terminal.
//
// Lines typed on stdin are sent as attacker commands unless they start with
// a slash; see /help.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/cyberlab-sim/internal/auth"
	"github.com/DoyleJ11/cyberlab-sim/internal/logging"
	"github.com/DoyleJ11/cyberlab-sim/pkg/protocol"
	"github.com/DoyleJ11/cyberlab-sim/pkg/wsclient"
)

func main() {
	origin := flag.String("origin", "http://localhost:3000", "page origin the URL is derived from (the backend port is always 8000)")
	rawURL := flag.String("url", "", "full WebSocket URL; overrides -origin")
	code := flag.String("lobby", "", "lobby code")
	name := flag.String("name", "", "display name")
	role := flag.String("role", string(protocol.RoleAttacker), "Attacker | Defender | Instructor | Observer (any case)")
	token := flag.String("token", "", "JWT to present")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "sign a short-lived token locally when -token is empty")
	level := flag.String("log-level", "warn", "debug | info | warn | error")
	flag.Parse()

	if *code == "" || *name == "" {
		flag.Usage()
		os.Exit(2)
	}
	r, err := parseRole(*role)
	if err != nil {
		fmt.Fprintln(os.Stderr, "simclient:", err)
		os.Exit(2)
	}
	if err := run(*origin, *rawURL, *code, *name, r, *token, *secret, *level); err != nil {
		fmt.Fprintln(os.Stderr, "simclient:", err)
		os.Exit(1)
	}
}

func run(origin, rawURL, code, name string, role protocol.Role, token, secret, level string) error {
	log, err := logging.New(level, "console")
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if token == "" && secret != "" {
		if token, err = auth.Issue(secret, name, time.Hour); err != nil {
			return err
		}
	}

	url := rawURL
	var header http.Header
	if url == "" {
		o, err := wsclient.OriginFromURL(origin)
		if err != nil {
			return err
		}
		url = wsclient.BuildSimulationURL(o, code, token)
	} else if token != "" {
		header = http.Header{"Authorization": {"Bearer " + token}}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	conn := wsclient.Dial(ctx, url,
		wsclient.WithLogger(log),
		wsclient.WithHeader(header),
		wsclient.WithHandler(wsclient.HandlerFunc(func(m protocol.Inbound) {
			fmt.Println(render(m))
		})),
		wsclient.OnStateChange(func(from, to wsclient.State) {
			log.Info("connection state", zap.Stringer("from", from), zap.Stringer("to", to))
		}),
	)
	defer func() { _ = conn.Close() }()
	if err := conn.SetHello(protocol.Join{Name: name, Role: role}); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-conn.Done():
			return conn.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			msg, err := parseLine(line)
			if err != nil {
				fmt.Println("!", err)
				continue
			}
			if msg == nil {
				continue
			}
			if !wsclient.SafeSend(conn, msg) {
				fmt.Printf("! not sent (%s)\n", conn.State())
			}
		}
	}
}
