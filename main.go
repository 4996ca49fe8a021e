package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"go-aidr/agents"
	"go-aidr/backend"
	"go-aidr/config"
	"go-aidr/cronjobs"
	"go-aidr/db"
	"go-aidr/geocode"
	"go-aidr/handlers"
	"go-aidr/missions"
	"go-aidr/router"
	"go-aidr/routes"
	"go-aidr/snapshot"
	"go-aidr/store"
	"go-aidr/summarization"
	"go-aidr/tasks"
	"go-aidr/wsclient"
)

const (
	initialLoadTimeout = 30 * time.Second
	shutdownTimeout    = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// no logger yet
		zap.NewExample().Fatal("Invalid configuration", zap.Error(err))
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := store.New()
	api := backend.New(cfg.APIBase, cfg.HTTPRetries, logger)

	sources := []snapshot.Source{snapshot.RESTSource{API: api}}
	missionOpts := []missions.Option{missions.StrictAvailability(cfg.StrictAvailability)}
	var locations geocode.LocationSaver

	// Firestore is optional: without credentials the engine runs on the REST
	// backend and push stream alone.
	if cfg.FirebaseCredentials != "" {
		fs, err := db.InitFirestore(ctx, cfg.FirebaseCredentials)
		if err != nil {
			logger.Fatal("Failed to initialize Firestore", zap.Error(err))
		}
		defer db.CloseFirestore()

		fsLog := logger.Named("db")
		sources = append(sources, db.Source{Client: fs, Log: fsLog})
		missionOpts = append(missionOpts, missions.WithRecorder(db.Ledger{Client: fs, Log: fsLog}))
		locations = db.IncidentLocations{Client: fs, Log: fsLog}
		logger.Info("Firestore enabled")
	}

	loader := snapshot.NewLoader(s, logger, sources, snapshot.WithRefetchAPI(api))
	defer loader.Close()

	missionCtl := missions.New(s, logger, missionOpts...)
	taskCtl := tasks.New(s, api, logger, tasks.WithRollback(cfg.TaskRollback))
	sequencer := agents.New(s, api, logger)

	routerOpts := []router.Option{
		router.WithRefetcher(loader),
		router.WithMissionAdvancer(missionCtl),
	}
	if cfg.MapsAPIKey != "" {
		mc, err := geocode.InitMapsClient(cfg.MapsAPIKey)
		if err != nil {
			logger.Fatal("Failed to initialize maps client", zap.Error(err))
		}
		var enricherOpts []geocode.Option
		if locations != nil {
			enricherOpts = append(enricherOpts, geocode.WithLocationSaver(locations))
		}
		enricher := geocode.NewEnricher(mc, s, logger, enricherOpts...)
		defer enricher.Close()
		routerOpts = append(routerOpts, router.WithEnricher(enricher))
	}
	rt := router.New(s, logger, routerOpts...)

	loadCtx, cancel := context.WithTimeout(ctx, initialLoadTimeout)
	if err := loader.Load(loadCtx); err != nil {
		// the store carries the error for the operator; the push stream and
		// later resyncs can still bring the state in
		logger.Error("Initial snapshot load incomplete", zap.Error(err))
	}
	cancel()

	conn := wsclient.New(s, rt, logger,
		wsclient.WithReconnectDelay(cfg.ReconnectDelay),
		// the load above covers the first connect
		wsclient.OnReconnected(loader.Resync),
	)
	if err := conn.Connect(ctx, cfg.WSURL); err != nil {
		logger.Warn("Initial connection failed, retrying in background", zap.Error(err))
	}

	c, err := cronjobs.Start(cfg.ResyncSchedule, loader, logger)
	if err != nil {
		logger.Fatal("Failed to start cron jobs", zap.Error(err))
	}

	h := handlers.New(logger)
	h.Store = s
	h.Missions = missionCtl
	h.Tasks = taskCtl
	h.Agents = sequencer
	h.Snapshot = loader
	if cfg.OpenAIKey != "" {
		h.Briefer = summarization.NewBriefer(openai.NewClient(cfg.OpenAIKey), logger)
	} else {
		logger.Info("OPENAI_API_KEY not set, briefing disabled")
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           routes.SetupRouter(h, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	conn.Close()
	if c != nil {
		<-c.Stop().Done()
	}
	h.Close()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}
