// Package main is the entry point for the weft coordinator: a single
// binary serving the multi-tenant HTTP/WebSocket surface over an
// in-process event bus, with an optional NATS bridge and audit journal
// layered on top per project.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/loominal/weft/internal/agent"
	"github.com/loominal/weft/internal/bridge"
	"github.com/loominal/weft/internal/common/config"
	"github.com/loominal/weft/internal/common/logger"
	"github.com/loominal/weft/internal/events"
	"github.com/loominal/weft/internal/httpapi"
	"github.com/loominal/weft/internal/journal"
	"github.com/loominal/weft/internal/project"
	"github.com/loominal/weft/internal/target"
	"github.com/loominal/weft/internal/target/mechanism"
	"github.com/loominal/weft/internal/work"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting weft")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Docker spin-up mechanism is process-wide and optional: every
	// project's Target Registry shares one client, the way the Docker
	// daemon connection itself is a single external resource.
	var dockerMech *mechanism.Docker
	if cfg.Docker.Enabled {
		d, err := mechanism.NewDocker(cfg.Docker.Host, cfg.Docker.APIVersion, cfg.Docker.Image, nil, log)
		if err != nil {
			log.Warn("docker mechanism unavailable", zap.Error(err))
		} else if err := d.Ping(ctx); err != nil {
			log.Warn("docker daemon unreachable, disabling docker mechanism", zap.Error(err))
			_ = d.Close()
		} else {
			dockerMech = d
			defer d.Close()
			log.Info("docker mechanism connected", zap.String("image", cfg.Docker.Image))
		}
	}

	// The audit journal's database handle is shared across projects;
	// each project gets its own Journal subscribed to its own Bus.
	var journalDB *sqlx.DB
	if cfg.Database.Driver != "" {
		db, err := journal.Open(cfg.Database)
		if err != nil {
			log.Warn("audit journal unavailable", zap.Error(err))
		} else {
			journalDB = db
			defer db.Close()
			log.Info("audit journal opened", zap.String("driver", cfg.Database.Driver))
		}
	}

	var (
		sideMu   sync.Mutex
		journals []*journal.Journal
		bridges  []*bridge.Bridge
	)

	factory := func(projectID string, bus *events.Bus) (*work.Coordinator, *agent.Registry, *target.Registry) {
		ar := agent.New(projectID, bus)
		wc := work.New(projectID, bus, ar, cfg.Coordinator.StaleThreshold())

		mechanisms := []target.Mechanism{mechanism.Local{Command: "true"}}
		if dockerMech != nil {
			mechanisms = append(mechanisms, dockerMech)
		}
		tr := target.New(projectID, bus, log.WithProjectID(projectID), mechanisms...)

		if journalDB != nil {
			j := journal.New(journalDB, projectID, bus, log)
			sideMu.Lock()
			journals = append(journals, j)
			sideMu.Unlock()
		}

		if cfg.NATS.URL != "" {
			b, err := bridge.Connect(projectID, cfg.NATS, log)
			if err != nil {
				log.Warn("nats bridge unavailable", zap.String("project_id", projectID), zap.Error(err))
			} else {
				b.AttachOutbound(bus)
				if err := b.AttachInbound(ar); err != nil {
					log.Warn("nats inbound subscription failed", zap.String("project_id", projectID), zap.Error(err))
				}
				sideMu.Lock()
				bridges = append(bridges, b)
				sideMu.Unlock()
			}
		}

		return wc, ar, tr
	}

	manager := project.New(factory, cfg.Coordinator, log)
	manager.GetOrCreate("default")

	router := httpapi.NewRouter(cfg, log, manager)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down weft")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}

	manager.Shutdown()

	sideMu.Lock()
	for _, j := range journals {
		j.Close()
	}
	for _, b := range bridges {
		b.Close()
	}
	sideMu.Unlock()

	log.Info("weft stopped")
}
