package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boypt/torrentdesk/common"
	"github.com/boypt/torrentdesk/engine"
	"github.com/boypt/torrentdesk/ipc"
	"github.com/boypt/torrentdesk/metrics"
	"github.com/boypt/torrentdesk/server"
	"github.com/boypt/torrentdesk/server/httpmiddleware"
	"github.com/jpillora/opts"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

var VERSION = "0.0.0-src" //set with ldflags

var log = common.Logger("main")

func main() {
	s := server.Server{
		Title:      "torrentdesk",
		Port:       3000,
		ConfigPath: "torrentdesk.yaml",
		StatePath:  "torrentdesk-state.json",
	}

	opts.New(&s).Name("torrentdesk").Version(VERSION).PkgRepo().Parse()

	common.Must(common.SetupLogging(s.LogConfig()))
	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, &s); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

func run(ctx context.Context, s *server.Server) error {
	c, err := engine.InitConf(s.ConfigPath)
	if err != nil {
		return err
	}
	if s.DebugTorrent {
		c.EngineDebug = true
	}

	if s.WorkerListen != "" {
		return runWorker(ctx, s.WorkerListen, c)
	}

	if s.WorkerAddr != "" {
		conn, err := ipc.Dial(ctx, s.WorkerAddr)
		if err != nil {
			return err
		}
		defer conn.Close()
		log.Infof("connected to worker at %s", s.WorkerAddr)
		return s.Run(ctx, VERSION, c.DownloadDirectory, conn)
	}

	client, err := engine.NewAnacrolixClient(c)
	if err != nil {
		return err
	}
	defer client.Close()
	ui, worker := ipc.Pipe(64)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer worker.Close()
		return engine.New(*c, client).Run(ctx, worker)
	})
	g.Go(func() error {
		defer ui.Close()
		return s.Run(ctx, VERSION, c.DownloadDirectory, ui)
	})
	return g.Wait()
}

// runWorker serves the torrent worker alone. One UI connects at a time.
func runWorker(ctx context.Context, addr string, c *engine.Config) error {
	client, err := engine.NewAnacrolixClient(c)
	if err != nil {
		return err
	}
	busy := make(chan struct{}, 1)
	mux := http.NewServeMux()
	mux.Handle("/ipc", ipc.Handler(func(conn ipc.Conn) {
		select {
		case busy <- struct{}{}:
			defer func() { <-busy }()
		default:
			log.Warn("rejecting second UI connection")
			return
		}
		log.Info("UI connected")
		if err := engine.New(*c, client).Run(ctx, conn); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorf("worker: %v", err)
		}
		log.Info("UI disconnected")
	}))
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: httpmiddleware.Liveness(mux), ErrorLog: common.StdLogger("http")}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("worker listening at %s", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		return client.Close()
	})
	return g.Wait()
}
