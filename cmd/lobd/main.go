// Command lobd runs the matching engine as a standalone daemon: it
// loads configuration, wires logging/metrics/feed/api/bus around one
// Engine, and serves until asked to stop. It never prints the book —
// formatted printing is external tooling's job, not this binary's.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/stratalob/lob/pkg/api"
	"github.com/stratalob/lob/pkg/book"
	"github.com/stratalob/lob/pkg/bus"
	"github.com/stratalob/lob/pkg/config"
	"github.com/stratalob/lob/pkg/feed"
	"github.com/stratalob/lob/pkg/logging"
	"github.com/stratalob/lob/pkg/metrics"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("lobd: %v", err)
		}
		cfg = loaded
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("lobd: logging: %v", err)
	}
	defer logger.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	engine := book.New()
	m := metrics.New("lob")
	feedServer := feed.NewServer(cfg.Symbol, engine, logger, feed.Config{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		DepthLevels:     cfg.Feed.DepthLevels,
		PongTimeout:     feed.DefaultConfig().PongTimeout,
		PingPeriod:      feed.DefaultConfig().PingPeriod,
		WriteTimeout:    feed.DefaultConfig().WriteTimeout,
	})

	var publisher *bus.Publisher
	if cfg.Bus.Enabled {
		publisher, err = bus.Connect(cfg.Bus.URL, cfg.Bus.Subject, cfg.Symbol, logger)
		if err != nil {
			logger.LogError(err, map[string]interface{}{"stage": "bus_connect"})
		} else {
			defer publisher.Close()
		}
	}

	apiServer := api.NewServer(engine, logger)
	apiServer.SetMetrics(m)
	apiServer.OnTrades(func(trades []*book.Trade) {
		for _, t := range trades {
			feedServer.BroadcastTrade(t)
		}
		if publisher != nil {
			publisher.Publish(trades)
		}
		if len(trades) > 0 {
			feedServer.BroadcastSnapshot()
		}
	})

	if *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, config.DefaultWatchConfig())
		if err != nil {
			logger.LogError(err, map[string]interface{}{"stage": "config_watch_init"})
		} else {
			watcher.OnReload(func(newCfg config.AppConfig) {
				logger.Info("config reloaded")
			})
			if err := watcher.Start(ctx); err != nil {
				logger.LogError(err, map[string]interface{}{"stage": "config_watch"})
			}
			defer watcher.Stop()
		}
	}

	go func() {
		if err := m.ListenAndServe(cfg.Metrics.ListenAddr); err != nil {
			logger.LogError(err, map[string]interface{}{"stage": "metrics_listen"})
		}
	}()
	go func() {
		if err := feedServer.Start(cfg.Feed.ListenAddr); err != nil {
			logger.LogError(err, map[string]interface{}{"stage": "feed_listen"})
		}
	}()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/", apiServer)
		httpServer := &http.Server{Addr: cfg.API.ListenAddr, Handler: mux}
		go func() {
			<-ctx.Done()
			httpServer.Shutdown(context.Background())
		}()
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.LogError(err, map[string]interface{}{"stage": "api_listen"})
		}
	}()

	logger.Info("lobd started",
		zap.String("symbol", cfg.Symbol),
		zap.String("api", cfg.API.ListenAddr),
		zap.String("feed", cfg.Feed.ListenAddr),
		zap.String("metrics", cfg.Metrics.ListenAddr),
	)

	<-ctx.Done()
	logger.Info("lobd shutting down")
	feedServer.Stop()
}
