package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"

	configpkg "driftpursuit/netplay/internal/config"
	"driftpursuit/netplay/internal/journal"
	"driftpursuit/netplay/internal/logging"
	"driftpursuit/netplay/internal/node"
	"driftpursuit/netplay/internal/observer"
	"driftpursuit/netplay/internal/replication"
	"driftpursuit/netplay/internal/simulation"
	"driftpursuit/netplay/internal/transport"
)

const (
	journalSweepInterval = time.Hour
	consoleBuffer        = 32
)

func main() {
	mode := flag.String("mode", "host", "host, join or watch")
	address := flag.String("address", "", "host to join, or observer target to watch")
	port := flag.Int("port", 0, "override NETPLAY_PORT")
	flag.Parse()

	cfg, err := configpkg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	if *port > 0 {
		cfg.Port = *port
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(2)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch strings.ToLower(*mode) {
	case "watch":
		err = runWatch(ctx, cfg, *address, os.Stdout)
	case "host", "join":
		err = runPeer(ctx, cfg, strings.ToLower(*mode), *address, os.Stdin, os.Stdout, logger)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		logger.Error("netplay exited", logging.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

// runPeer hosts or joins a session and drives it from the simulation loop
// until ctx ends or the console asks to quit.
func runPeer(ctx context.Context, cfg *configpkg.Config, mode, address string, in io.Reader, out io.Writer, logger *logging.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wsOpts, err := newWebSocketOptions(cfg, logger)
	if err != nil {
		return err
	}
	tr := transport.NewWebSocketTransport(wsOpts)
	feed := observer.NewFeed()

	var writer *journal.Writer
	if cfg.JournalDir != "" {
		//1.- Retention sweeps run in the background and always keep the newest bundle.
		cleaner := journal.NewCleaner(cfg.JournalDir, journal.RetentionPolicy{MaxSessions: cfg.JournalKeep, MaxAge: cfg.JournalMaxAge}, logger)
		go cleaner.Run(ctx, journalSweepInterval)
		var manifest journal.Manifest
		writer, manifest, err = journal.NewWriter(cfg.JournalDir, cfg.DisplayName, nil)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		logger.Info("journal opened", logging.String("session_id", manifest.SessionID), logging.String("dir", writer.Directory()))
	}

	n, err := node.New(cfg, tr, node.Options{
		Sink:    projectileLogger(logger),
		Feed:    feed,
		Journal: writer,
		Logger:  logger,
	})
	if err != nil {
		if writer != nil {
			_ = writer.Close()
		}
		return err
	}
	defer func() {
		if err := n.Close(); err != nil {
			logger.Warn("close node", logging.Error(err))
		}
	}()

	if cfg.ObserverAddr != "" {
		_, stopObserver, err := serveObserver(cfg, feed, logger)
		if err != nil {
			return err
		}
		defer stopObserver()
	}

	//2.- Open the session before the loop starts polling.
	if mode == "host" {
		if err := n.Host(); err != nil {
			return err
		}
		logger.Info("hosting", logging.String("url", sessionURL("", cfg.Port, cfg.WebSocketPath)))
	} else {
		if strings.TrimSpace(address) == "" {
			address = "localhost"
		}
		if err := n.Join(address); err != nil {
			return err
		}
		logger.Info("joining", logging.String("url", sessionURL(address, cfg.Port, cfg.WebSocketPath)))
	}

	loop := simulation.NewLoop(cfg.TickRate, consoleStep(n, consoleLines(ctx, in), out, cancel))
	err = loop.Run(ctx)
	stats := loop.Stats()
	logger.Info("simulation stopped",
		logging.Uint64("frames", stats.Frames),
		logging.Uint64("skipped", stats.Skipped),
		logging.Duration("avg_step", stats.Average),
		logging.Duration("max_step", stats.Max),
	)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// consoleLines forwards lines from in until it is exhausted or ctx ends.
func consoleLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string, consoleBuffer)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// consoleStep applies pending console commands and then steps the node. It
// never blocks on the console.
func consoleStep(n *node.Node, lines <-chan string, out io.Writer, quit func()) simulation.StepFunc {
	return func(step time.Duration) {
	drain:
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					lines = nil
					break drain
				}
				if strings.TrimSpace(line) == "" {
					continue
				}
				cmd, err := parseCommand(line)
				if err != nil {
					fmt.Fprintln(out, "error:", err)
					continue
				}
				if cmd.kind == cmdQuit {
					quit()
					return
				}
				msg, err := cmd.apply(n)
				if err != nil {
					fmt.Fprintln(out, "error:", err)
				} else if msg != "" {
					fmt.Fprintln(out, msg)
				}
			default:
				break drain
			}
		}
		n.Step(step)
	}
}

func projectileLogger(logger *logging.Logger) replication.EffectSink {
	log := logger.With(logging.String("component", "effects"))
	return replication.EffectSinkFunc(func(p replication.Projectile) {
		v := p.Velocity()
		log.Debug("projectile",
			logging.Int32("shooter", int32(p.Shooter)),
			logging.Float64("x", float64(p.Origin.X)),
			logging.Float64("y", float64(p.Origin.Y)),
			logging.Float64("vx", float64(v.X)),
			logging.Float64("vy", float64(v.Y)),
		)
	})
}

// serveObserver exposes feed over gRPC and returns the bound address and a
// function stopping the server.
func serveObserver(cfg *configpkg.Config, feed *observer.Feed, logger *logging.Logger) (net.Addr, func(), error) {
	opts, err := observerServerOptions(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	listener, err := net.Listen("tcp", cfg.ObserverAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("observer listen: %w", err)
	}
	server := grpc.NewServer(opts...)
	observer.Register(server, observer.NewService(feed, logger))
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Warn("observer stopped", logging.Error(err))
		}
	}()
	logger.Info("observer listening", logging.String("url", observerURL(listener.Addr().String(), cfg.ObserverMTLS())))
	return listener.Addr(), server.GracefulStop, nil
}

// runWatch prints the status stream of a remote observer until ctx ends.
func runWatch(ctx context.Context, cfg *configpkg.Config, target string, out io.Writer) error {
	if strings.TrimSpace(target) == "" {
		target = normaliseHostPort(cfg.ObserverAddr)
	}
	dialOpts, err := observerDialOptions(cfg)
	if err != nil {
		return err
	}
	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return fmt.Errorf("dial observer: %w", err)
	}
	defer conn.Close()

	client := observer.NewClient(conn, cfg.ObserverSecret)
	stream, err := client.WatchStatus(ctx)
	if err != nil {
		return err
	}
	for {
		msg, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		update := observer.DecodeStatus(msg)
		fmt.Fprintf(out, "#%d %s local_id=%d host=%t ready=%t\n", update.Seq, update.Status, update.LocalID, update.Host, update.MultiplayerReady)
	}
}
