// Package discovery is an optional LAN advertise/browse layer for
// self-hosted deployments with no central registry, off by default.
// Grounded directly on the teacher agent's startDiscovery: register
// an mDNS service for this instance, then browse for siblings and log
// what turns up. Registration is retried with backoff, since mDNS
// registration can transiently fail on a host with no usable
// multicast-capable interface yet (e.g. right after boot).
package discovery

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog"
)

const serviceName = "_drawroom._tcp"

// Advertise registers this instance on the LAN and starts browsing
// for siblings in the background. The returned shutdown func
// unregisters the service; it is always safe to call.
func Advertise(port int, logger zerolog.Logger) (shutdown func(), err error) {
	host, _ := os.Hostname()
	instance := fmt.Sprintf("drawroom-%s", host)

	var server *zeroconf.Server
	register := func() error {
		s, err := zeroconf.Register(instance, serviceName, "local.", port, []string{"v=1"}, nil)
		if err != nil {
			return err
		}
		server = s
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(register, b); err != nil {
		return nil, fmt.Errorf("discovery: register: %w", err)
	}
	logger.Info().Str("instance", instance).Int("port", port).Msg("advertising on LAN via mDNS")

	ctx, cancel := context.WithCancel(context.Background())
	go browse(ctx, logger)

	return func() {
		cancel()
		if server != nil {
			server.Shutdown()
		}
	}, nil
}

func browse(ctx context.Context, logger zerolog.Logger) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		logger.Warn().Err(err).Msg("discovery: resolver init failed")
		return
	}
	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for entry := range entries {
			logger.Info().Str("instance", entry.Instance).Msg("discovery: found sibling instance")
		}
	}()
	if err := resolver.Browse(ctx, serviceName, "local.", entries); err != nil {
		logger.Warn().Err(err).Msg("discovery: browse failed")
	}
	<-ctx.Done()
}
