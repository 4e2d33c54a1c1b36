// Command srp-gateway serves the search-results refresh endpoints in front of the
// inventory service, with a shared Redis response cache and tag invalidation.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/srp-filter/internal/api"
	"github.com/Sternrassler/srp-filter/internal/config"
	"github.com/Sternrassler/srp-filter/pkg/cache"
	"github.com/Sternrassler/srp-filter/pkg/fetcher"
	"github.com/Sternrassler/srp-filter/pkg/inventory"
	"github.com/Sternrassler/srp-filter/pkg/invalidation"
	"github.com/Sternrassler/srp-filter/pkg/logging"
	"github.com/Sternrassler/srp-filter/pkg/warmup"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config.FromEnv()); err != nil {
		log.Fatal().Err(err).Msg("Gateway failed")
	}
}

// consumer is a long-running invalidation event source.
type consumer interface {
	Start(ctx context.Context) error
}

type app struct {
	cfg      config.Config
	server   *api.Server
	warmer   *warmup.Warmer
	consumer consumer
}

func run(ctx context.Context, cfg config.Config) error {
	logging.Setup(logging.Config{
		Level:   logging.LogLevel(cfg.LogLevel),
		Pretty:  cfg.LogPretty,
		Output:  os.Stderr,
		Service: "srp-gateway",
	})
	logger := logging.NewLogger("main")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	defer func() { _ = rdb.Close() }()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = rdb.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Str("redis", opts.Addr).Msg("Connected to Redis")

	a, err := newApp(cfg, rdb)
	if err != nil {
		return err
	}
	return a.run(ctx)
}

// newApp wires the gateway components around a connected Redis client.
func newApp(cfg config.Config, rdb *redis.Client) (*app, error) {
	manager := cache.NewManager(rdb)

	fcfg := fetcher.DefaultConfig(cfg.UserAgent)
	fcfg.HTTPClient = newHTTPClient()
	fcfg.Cache = manager
	f, err := fetcher.New(fcfg)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}

	icfg := inventory.DefaultConfig(cfg.UpstreamURL, cfg.SiteID)
	icfg.PageSize = cfg.PageSize
	icfg.Revalidate = cfg.Revalidate
	icfg.Timeout = cfg.FetchTimeout
	icfg.Retries = cfg.FetchRetries
	source, err := inventory.New(f, icfg)
	if err != nil {
		return nil, fmt.Errorf("create inventory client: %w", err)
	}

	handler := invalidation.NewHandler(manager)
	a := &app{cfg: cfg}

	switch cfg.Invalidation.Driver {
	case config.DriverKafka:
		kcfg := invalidation.DefaultKafkaConfig(cfg.Invalidation.KafkaBrokers)
		kcfg.Topic = cfg.Invalidation.KafkaTopic
		kcfg.GroupID = cfg.Invalidation.KafkaGroupID
		if a.consumer, err = invalidation.NewKafkaConsumer(kcfg, handler); err != nil {
			return nil, fmt.Errorf("create kafka consumer: %w", err)
		}
	case config.DriverAMQP:
		acfg := invalidation.DefaultAMQPConfig(cfg.Invalidation.AMQPURL)
		acfg.Exchange = cfg.Invalidation.AMQPExchange
		if a.consumer, err = invalidation.NewAMQPListener(acfg, handler); err != nil {
			return nil, fmt.Errorf("create amqp listener: %w", err)
		}
	}

	apiCfg := api.DefaultConfig()
	apiCfg.RevalidateSecret = cfg.RevalidateSecret
	apiCfg.CORSOrigins = cfg.CORSOrigins
	apiCfg.RequestTimeout = time.Duration(cfg.FetchRetries+1)*cfg.FetchTimeout + 10*time.Second
	checks := map[string]api.HealthCheck{
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}
	if a.server, err = api.New(apiCfg, source, handler, checks); err != nil {
		return nil, fmt.Errorf("create api server: %w", err)
	}

	if a.warmer, err = warmup.New(source, warmup.Config{
		Concurrency: cfg.WarmConcurrency,
		Timeout:     apiCfg.RequestTimeout,
		MaxPages:    cfg.WarmMaxPages,
	}); err != nil {
		return nil, fmt.Errorf("create warmer: %w", err)
	}
	return a, nil
}

// run serves until ctx is done. Warmup failures are logged and never stop the
// gateway; a failing invalidation consumer does.
func (a *app) run(ctx context.Context) error {
	logger := logging.NewLogger("main")
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.Run(gctx, a.cfg.Addr, a.cfg.ShutdownTimeout)
	})

	if a.consumer != nil {
		g.Go(func() error {
			if err := a.consumer.Start(gctx); err != nil {
				return fmt.Errorf("invalidation consumer: %w", err)
			}
			return nil
		})
	}

	if len(a.cfg.WarmPaths) > 0 {
		g.Go(func() error {
			report, err := a.warmer.Warm(gctx, a.cfg.WarmPaths)
			if err != nil {
				logger.Warn().Err(err).Int("failed", report.Failed).Msg("Cache warmup incomplete")
			}
			return nil
		})
	}

	logger.Info().
		Str("addr", a.cfg.Addr).
		Str("site_id", a.cfg.SiteID).
		Str("invalidation", a.cfg.Invalidation.Driver).
		Msg("Gateway started")
	return g.Wait()
}

func newHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   128,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: transport}
}
