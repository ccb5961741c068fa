package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"dirwatch/internal/cli"
	"dirwatch/internal/client"
	"dirwatch/internal/logging"
	"dirwatch/internal/watcher"
)

const redrawDelay = 100 * time.Millisecond

type pathList []string

func (p *pathList) String() string {
	if p == nil {
		return ""
	}
	return strings.Join(*p, ",")
}

func (p *pathList) Set(value string) error {
	*p = append(*p, value)
	return nil
}

type options struct {
	Server  string
	Token   string
	Expand  []string
	Once    bool
	Verbose bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stdout)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 1
	}
	if opts == nil {
		cli.WriteVersion(stdout, "dirwatch-tree")
		return 0
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	level := logging.LevelWarning
	if opts.Verbose {
		level = logging.LevelDebug
	}
	logger := logging.NewLoggerWithOutput(logging.NewLogBuffer(100), level, stderr)

	if err := mirror(ctx, *opts, stdout, logger); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

func parseArgs(args []string, out io.Writer) (*options, error) {
	fs := flag.NewFlagSet("dirwatch-tree", flag.ContinueOnError)
	fs.SetOutput(out)
	server := fs.String("server", "http://127.0.0.1:3000", "dirwatch server URL")
	token := fs.String("token", os.Getenv("DIRWATCH_TOKEN"), "Auth token (env: DIRWATCH_TOKEN)")
	var expand pathList
	fs.Var(&expand, "expand", "Directory to expand and watch (repeatable)")
	once := fs.Bool("once", false, "Print the tree once and exit")
	verbose := fs.Bool("verbose", false, "Log debug output to stderr")
	helpVersion := cli.AddHelpVersionFlags(fs, "Show help", "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if helpVersion.Help {
		fs.Usage()
		return nil, flag.ErrHelp
	}
	if helpVersion.Version {
		return nil, nil
	}
	expand = append(expand, fs.Args()...)
	return &options{
		Server:  *server,
		Token:   *token,
		Expand:  expand,
		Once:    *once,
		Verbose: *verbose,
	}, nil
}

// mirror loads the server's roots, expands the requested directories and
// redraws the tree whenever an event changes it.
func mirror(ctx context.Context, opts options, out io.Writer, logger *logging.Logger) error {
	c := client.New(opts.Server, opts.Token)

	redraw := newRedrawer(out)
	session := client.NewSession(c, client.SessionOptions{
		Logger: logger,
		OnChange: func(watcher.Event) {
			redraw.schedule()
		},
	})
	redraw.session = session

	var stream *client.Stream
	if !opts.Once {
		var err error
		stream, err = c.Subscribe(ctx)
		if err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	if _, err := session.Start(ctx); err != nil {
		logger.Warn("start failed", map[string]string{"error": err.Error()})
	}
	for _, path := range opts.Expand {
		if err := session.Expand(ctx, path); err != nil {
			logger.Warn("expand failed", map[string]string{
				"path":  path,
				"error": err.Error(),
			})
		}
	}
	redraw.draw()

	if opts.Once {
		var errs []error
		for _, path := range session.Expanded() {
			errs = append(errs, session.Collapse(ctx, path))
		}
		return errors.Join(errs...)
	}
	defer redraw.stop()
	return session.Follow(ctx, stream)
}

type redrawer struct {
	out     io.Writer
	session *client.Session

	mu    sync.Mutex
	timer *time.Timer
}

func newRedrawer(out io.Writer) *redrawer {
	return &redrawer{out: out}
}

// schedule coalesces bursts of events into one redraw.
func (r *redrawer) schedule() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		return
	}
	r.timer = time.AfterFunc(redrawDelay, func() {
		r.mu.Lock()
		r.timer = nil
		r.mu.Unlock()
		r.draw()
	})
}

func (r *redrawer) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *redrawer) draw() {
	fmt.Fprint(r.out, "\033[H\033[2J")
	renderTree(r.out, r.session.Roots(), r.session.Cache(), r.session.IsExpanded)
}
