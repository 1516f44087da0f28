package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"example.com/cubomatch/internal/config"
	"example.com/cubomatch/internal/game"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg config.Config
	log *slog.Logger

	hub       *game.Hub
	rdb       *redis.Client
	publisher *game.RedisPublisher

	srv *http.Server
}

type Options struct {
	Clock clockwork.Clock // optional; real clock when nil
}

func New(ctx context.Context, cfg config.Config, log *slog.Logger, opts Options) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	a := &App{cfg: cfg, log: log}

	hubOpts := []game.HubOption{
		game.WithClock(clock),
		game.WithLogger(log.With("component", "hub")),
	}

	// --- Redis snapshot mirror (optional) ---
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Addr,
			DB:   cfg.Redis.DB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping (%s db=%d): %w", cfg.Redis.Addr, cfg.Redis.DB, err)
		}

		a.rdb = rdb
		a.publisher = game.NewRedisPublisher(rdb, cfg.Redis.Channel, log.With("component", "redis"))
		hubOpts = append(hubOpts, game.WithSink(a.publisher))
	}

	// --- Game ---
	a.hub = game.NewHub(game.Config{
		Rules: game.Rules{
			Timings: game.Timings{
				Handoff: cfg.Game.Handoff,
				Red:     cfg.Game.InspectRed,
				Yellow:  cfg.Game.InspectYellow,
				Green:   cfg.Game.InspectGreen,
			},
			Attempts: cfg.Game.Attempts,
		},
		ScrambleLength: cfg.Game.ScrambleLength,
		TickInterval:   cfg.Game.TickInterval,
	}, hubOpts...)

	mux := http.NewServeMux()
	game.NewServer(a.hub, log.With("component", "ws")).RegisterRoutes(mux)

	handler := cors.New(cors.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet},
	}).Handler(mux)

	a.srv = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}
	return a, nil
}

func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	a.log.Info("http server starting", "addr", a.cfg.HTTP.Addr)

	g.Go(func() error {
		return a.hub.Run(gctx)
	})

	if a.publisher != nil {
		g.Go(func() error {
			return a.publisher.Run(gctx)
		})
	}

	g.Go(func() error {
		err := a.srv.ListenAndServe()
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		a.log.Info("http server shutting down")
		_ = a.srv.Shutdown(shutdownCtx)
		return nil
	})

	err := g.Wait()
	_ = a.Close(context.Background())
	return err
}

func (a *App) Close(ctx context.Context) error {
	// best-effort
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	return nil
}
