// Command drawroomd runs the collaborative drawing room service:
// the HTTP/WS gateway, the rooms directory, and whichever of the
// optional Redis relay / Postgres activity log / bbolt room index /
// mDNS discovery side channels are configured via the environment.
// Structured the way the teacher's main.go wires Redis and Postgres
// before starting the listener, generalized with retry-with-backoff
// around the Redis and Postgres connections (and, inside package
// discovery, the mDNS registration) instead of log.Fatal on the first
// hiccup — an optional dependency that never comes up should degrade
// the service, not crash it.
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog"

	"drawroom/internal/activity"
	"drawroom/internal/config"
	"drawroom/internal/discovery"
	"drawroom/internal/httpapi"
	"drawroom/internal/logging"
	"drawroom/internal/relay"
	"drawroom/internal/roomindex"
	"drawroom/internal/rooms"
	"drawroom/internal/store"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	snapshotStore := store.New(cfg.DataDir)

	index, err := roomindex.Open(filepath.Join(cfg.DataDir, "rooms.db"))
	if err != nil {
		logger.Warn().Err(err).Msg("room directory index unavailable, /rooms will report empty")
		index = nil
	}
	if index != nil {
		defer index.Close()
	}

	var activityLog *activity.Log
	if cfg.DatabaseURL != "" {
		activityLog = connectActivityLog(cfg.DatabaseURL, logger)
		if activityLog != nil {
			defer activityLog.Close()
		}
	}

	var relayClient *relay.Relay
	if cfg.RedisAddr != "" {
		relayClient = connectRelay(cfg.RedisAddr, logger)
		if relayClient != nil {
			defer relayClient.Close()
		}
	}

	manager := rooms.New(snapshotStore, index, activityLog, relayClient, logger)

	if cfg.MDNS {
		if shutdown, err := discovery.Advertise(listenPort(cfg.Addr), logger); err != nil {
			logger.Warn().Err(err).Msg("LAN discovery unavailable")
		} else {
			defer shutdown()
		}
	}

	router := httpapi.NewRouter(manager, index, logger)
	srv := &http.Server{Addr: cfg.Addr, Handler: router}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("drawroomd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	waitForShutdown(logger, manager, srv)
}

// connectActivityLog retries the initial Postgres connection with
// backoff rather than refusing to start the whole service over a
// best-effort analytics side channel.
func connectActivityLog(dsn string, logger zerolog.Logger) *activity.Log {
	var log *activity.Log
	connect := func() error {
		l, err := activity.New(context.Background(), dsn, logger)
		if err != nil {
			return err
		}
		log = l
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(connect, b); err != nil {
		logger.Warn().Err(err).Msg("activity log unavailable, analytics disabled")
		return nil
	}
	return log
}

// connectRelay mirrors connectActivityLog for the Redis relay.
func connectRelay(addr string, logger zerolog.Logger) *relay.Relay {
	var r *relay.Relay
	connect := func() error {
		rl, err := relay.New(context.Background(), addr, logger)
		if err != nil {
			return err
		}
		r = rl
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(connect, b); err != nil {
		logger.Warn().Err(err).Msg("relay unavailable, running single-instance")
		return nil
	}
	return r
}

func listenPort(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 8080
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 8080
	}
	return port
}

// waitForShutdown blocks until SIGINT/SIGTERM, then flushes every
// dirty room to disk and drains the HTTP server before returning.
func waitForShutdown(logger zerolog.Logger, manager *rooms.Manager, srv *http.Server) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Info().Msg("shutting down, flushing live rooms")
	manager.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("server shutdown did not complete cleanly")
	}
}
