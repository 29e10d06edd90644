package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/docbrown/xbdm/internal/console"
	"github.com/docbrown/xbdm/internal/discovery"
	"github.com/docbrown/xbdm/internal/observability"
	"github.com/docbrown/xbdm/internal/protocol"
)

// App hosts one invocation's state: the loaded targets file, the
// picked console, and the output options for binary replies.
type App struct {
	reader   *bufio.Reader
	resolver *discovery.Resolver

	cfgPath string
	cfg     targetsConfig

	rawTarget string
	target    consoleTarget
	binSize   int64
	outPath   string
}

func main() {
	var (
		cfgPath  string
		target   string
		discover bool
		watch    bool
		binSize  int64
		outPath  string
	)
	flag.StringVar(&cfgPath, "config", "", "targets file (toml)")
	flag.StringVar(&target, "target", "", "console name or address (default from the targets file)")
	flag.BoolVar(&discover, "discover", false, "list consoles answering on the local network and exit")
	flag.BoolVar(&watch, "watch", false, "stream notifications until interrupted")
	flag.Int64Var(&binSize, "binlen", 0, "binary reply size for commands the monitor does not announce a length for")
	flag.StringVar(&outPath, "out", "", "write binary replies to this file instead of hex dumping")
	flag.Parse()

	observability.InitLogger("xbdmctl")

	app, err := NewApp(cfgPath, target, binSize, outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "xbdmctl: %v\n", err)
		os.Exit(1)
	}
	if err := app.Run(discover, watch, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "xbdmctl: %v\n", err)
		os.Exit(1)
	}
}

func NewApp(cfgPath string, target string, binSize int64, outPath string) (*App, error) {
	app := &App{
		reader:    bufio.NewReader(os.Stdin),
		resolver:  discovery.NewResolver(discovery.Config{}),
		cfgPath:   strings.TrimSpace(cfgPath),
		rawTarget: strings.TrimSpace(target),
		binSize:   binSize,
		outPath:   strings.TrimSpace(outPath),
	}
	app.cfg = defaultTargetsConfig()
	if app.cfgPath != "" {
		cfg, err := loadTargetsConfig(app.cfgPath)
		if err != nil {
			return nil, err
		}
		app.cfg = cfg
	}
	return app, nil
}

// Run dispatches one invocation. Modes are exclusive: discovery wins,
// then watch, then a one-shot command from the remaining arguments,
// then the interactive prompt.
func (a *App) Run(discover bool, watch bool, args []string) error {
	ctx := context.Background()

	if discover {
		return a.runDiscover(ctx)
	}

	target, err := chooseTarget(a.cfg, a.rawTarget)
	if err != nil {
		return err
	}
	a.target = target

	sessionCfg := a.cfg.Session
	sessionCfg.DisableNotifications = !watch

	resolveCtx, cancel := context.WithTimeout(ctx, sessionCfg.ConnectTimeout)
	addr, err := a.resolver.ResolveAddr(resolveCtx, target.dialTarget())
	cancel()
	if err != nil {
		return err
	}

	sess, err := console.Connect(ctx, addr, sessionCfg)
	if err != nil {
		return err
	}
	defer sess.Close()
	log.Info().
		Str("console", target.Name).
		Str("addr", sess.Addr()).
		Str("greeting", sess.Greeting().Message).
		Msg("connected")

	if watch {
		return a.runWatch(ctx, sess)
	}
	if len(args) > 0 {
		return a.runOnce(ctx, sess, strings.Join(args, " "))
	}
	return a.runPrompt(ctx, sess)
}

// runDiscover lists every console answering on the local network.
func (a *App) runDiscover(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Session.ConnectTimeout)
	defer cancel()

	endpoints, err := a.resolver.Discover(ctx)
	if err != nil {
		return err
	}
	if len(endpoints) == 0 {
		fmt.Println("No consoles answered.")
		return nil
	}
	fmt.Printf("Consoles (%d)\n", len(endpoints))
	for _, ep := range endpoints {
		fmt.Printf("  %-16s %s (%s)\n", ep.Name, ep.HostPort(), generation(ep))
	}
	return nil
}

func generation(ep discovery.Endpoint) string {
	if ep.Is360() {
		return "360"
	}
	return "classic"
}

// runOnce executes a single command and renders the reply. An
// error-class monitor status becomes the process error so shell
// callers see a nonzero exit; the reply itself still prints.
func (a *App) runOnce(ctx context.Context, sess *console.Session, line string) error {
	resp, err := sess.Execute(ctx, a.command(line))
	if err != nil {
		return err
	}
	if err := a.printResponse(resp); err != nil {
		return err
	}
	return resp.Err()
}

// runWatch follows the notification stream until interrupted.
func (a *App) runWatch(ctx context.Context, sess *console.Session) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sub, err := sess.Subscribe()
	if err != nil {
		return err
	}
	defer sub.Cancel()

	fmt.Println("Watching notifications; interrupt to stop.")
	for {
		select {
		case <-ctx.Done():
			if n := sub.Dropped(); n > 0 {
				log.Warn().Uint64("dropped", n).Msg("notifications lost to a full buffer")
			}
			return nil
		case n, ok := <-sub.C:
			if !ok {
				return errors.New("notification stream closed")
			}
			printNotification(n)
		}
	}
}

// runPrompt drives the interactive loop. Lines go to the monitor
// verbatim; exit and quit are the only local words.
func (a *App) runPrompt(ctx context.Context, sess *console.Session) error {
	fmt.Println()
	fmt.Printf("Console %s (%s)\n", a.target.Name, sess.Addr())
	fmt.Printf("  %s\n", sess.Greeting())
	fmt.Println("Type monitor commands; exit leaves.")
	for {
		line, err := a.promptLine(a.target.Name)
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Println()
				return nil
			}
			return err
		}
		trimmed := strings.TrimSpace(line)
		switch strings.ToLower(trimmed) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		resp, err := sess.Execute(ctx, a.command(trimmed))
		if err != nil {
			if !usableAfter(err) {
				return err
			}
			log.Error().Err(err).Msg("command failed")
			continue
		}
		if err := a.printResponse(resp); err != nil {
			return err
		}
	}
}

func (a *App) command(line string) protocol.Command {
	return protocol.Command{Line: line, BinarySize: a.binSize}
}

// printResponse renders one reply. Binary goes to -out when set, hex
// dump otherwise.
func (a *App) printResponse(resp *console.Response) error {
	fmt.Println(resp.Status)
	for _, line := range resp.Lines {
		fmt.Println(line)
	}
	if len(resp.Data) > 0 {
		if a.outPath != "" {
			if err := os.WriteFile(a.outPath, resp.Data, 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %d bytes to %s\n", len(resp.Data), a.outPath)
		} else {
			fmt.Print(hex.Dump(resp.Data))
		}
	}
	return nil
}

func printNotification(n console.Notification) {
	if n.Err != nil {
		fmt.Printf("! %v\n", n.Err)
		return
	}
	fmt.Println(n.Status)
	for _, line := range n.Lines {
		fmt.Println(line)
	}
}

// usableAfter reports whether the session survives the failure, so the
// prompt can keep going instead of bailing out.
func usableAfter(err error) bool {
	switch {
	case errors.Is(err, console.ErrSessionBroken),
		errors.Is(err, console.ErrSessionClosed),
		errors.Is(err, console.ErrTransportClosed):
		return false
	}
	return true
}

func (a *App) promptLine(label string) (string, error) {
	if strings.TrimSpace(label) != "" {
		fmt.Printf("%s> ", label)
	}
	line, err := a.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
