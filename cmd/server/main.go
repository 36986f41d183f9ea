package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/komorebi-pos/engine/internal/config"
	"github.com/komorebi-pos/engine/internal/engine"
	"github.com/komorebi-pos/engine/internal/router"
	"github.com/komorebi-pos/engine/internal/store"
	"github.com/komorebi-pos/engine/internal/ws"
)

func main() {
	configFile := flag.String("config", "", "optional config file")
	flag.Parse()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx := context.Background()

	var remote store.Remote
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		remote, err = store.NewPostgresRemote(ctx, cfg.DatabaseURL, log)
	default:
		remote, err = store.NewFirestoreRemote(ctx, cfg.FirestoreProject, log)
	}
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("connect remote store")
	}

	var cache store.Cache
	if cfg.RedisAddr != "" {
		rc := store.NewRedisCache(cfg.RedisAddr, log)
		if err := rc.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, running without local cache")
		} else {
			cache = rc
		}
	}

	st := store.NewAdapter(remote, cache, cfg.RetryMaxAttempts, cfg.RetryBaseDelay, log)

	eng := engine.New(st, log)
	if err := eng.Hydrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("hydrate state")
	}

	hub := ws.NewHub()
	go hub.Run()
	eng.OnStatusChange(func(ev engine.Event) {
		payload, err := json.Marshal(ev)
		if err != nil {
			log.Error().Err(err).Msg("marshal status event")
			return
		}
		hub.BroadcastToFloor(ev.Floor, ws.Event{Type: "table_status", Payload: payload})
	})

	// Replay local-only writes in the background once connectivity returns.
	go func() {
		ticker := time.NewTicker(cfg.FlushInterval)
		defer ticker.Stop()
		for range ticker.C {
			if st.Pending() > 0 {
				st.Flush(ctx)
			}
		}
	}()

	r := router.New(cfg, eng, hub, log)

	log.Info().Str("port", cfg.Port).Str("backend", cfg.StoreBackend).Msg("starting server")
	if err := http.ListenAndServe(fmt.Sprintf(":%s", cfg.Port), r); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
