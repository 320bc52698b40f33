package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/jrsteele09/go-coworking-session/coworking"
	"github.com/jrsteele09/go-coworking-session/internal/config"
	"github.com/jrsteele09/go-coworking-session/internal/logging"
	"github.com/jrsteele09/go-coworking-session/internal/metrics"
	"github.com/jrsteele09/go-coworking-session/invalidation"
	"github.com/jrsteele09/go-coworking-session/sessions"
	"github.com/jrsteele09/go-coworking-session/storage"
	"github.com/jrsteele09/go-coworking-session/tenants"
	"github.com/jrsteele09/go-coworking-session/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

// redisTab is the namespace CLI runs share, so a session survives between them
const redisTab = "cli"

var errNoSpace = errors.New("no space given: use --space or set COWORKING_SPACE")

// session is everything one command invocation works with
type session struct {
	cfg      config.Config
	slug     string
	store    *token.Store
	client   *coworking.Client
	ctrl     *sessions.Controller
	registry *prometheus.Registry
	closers  []func() error
}

// withSession loads the configuration, restores the stored session and
// hands it to action
func withSession(action func(c *cli.Context, s *session) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		s, err := openSession(c)
		if err != nil {
			return err
		}
		defer s.close(c.String("metrics_file"))
		return action(c, s)
	}
}

func openSession(c *cli.Context) (*session, error) {
	cfg, err := config.Load(c.String("config_file"))
	if err != nil {
		return nil, err
	}
	log.Logger = logging.New(cfg, os.Stderr)

	s := &session{cfg: cfg, registry: prometheus.NewRegistry()}
	tab, err := s.openStorage(c.Context)
	if err != nil {
		return nil, err
	}

	channel := invalidation.NewChannel()
	s.closers = append(s.closers, channel.Close)
	m := metrics.New(s.registry)

	s.store = token.NewStore(tab)
	s.client = coworking.NewClient(cfg.GetAPIBaseURL(), s.store,
		coworking.WithChannel(channel),
		coworking.WithMetrics(m),
	)
	s.ctrl = sessions.NewController(s.store, s.client,
		sessions.WithChannel(channel),
		sessions.WithConfig(cfg),
		sessions.WithMetrics(m),
		sessions.WithDirectory(tenants.NewDirectory(s.client, tab)),
	)
	if err := s.ctrl.Start(c.Context); err != nil {
		s.close("")
		return nil, err
	}

	s.slug = c.String("space")
	if s.slug == "" {
		s.slug, _ = s.store.ReadTenant(c.Context)
	}
	if s.slug == "" {
		s.slug = cfg.GetDefaultSpace()
	}
	return s, nil
}

func (s *session) openStorage(ctx context.Context) (storage.Storage, error) {
	switch s.cfg.GetStorageDriver() {
	case config.StorageDriverMemory:
		return storage.NewMemory(), nil
	case config.StorageDriverRedis:
		opts, err := redis.ParseURL(s.cfg.GetRedisURL())
		if err != nil {
			return nil, fmt.Errorf("[cli openStorage] invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("[cli openStorage] redis unreachable: %w", err)
		}
		s.closers = append(s.closers, client.Close)
		return storage.NewRedis(client, s.cfg.GetRedisPrefix(), redisTab), nil
	default:
		key, err := storage.ParseKey(s.cfg.GetStorageKey())
		if err != nil {
			return nil, err
		}
		return storage.NewFile(s.cfg.GetStorageFile(), key), nil
	}
}

func (s *session) close(metricsFile string) {
	s.ctrl.Close()
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Warn().Err(err).Msg("failed to close resource")
		}
	}
	if metricsFile != "" {
		if err := prometheus.WriteToTextfile(metricsFile, s.registry); err != nil {
			log.Warn().Err(err).Str("file", metricsFile).Msg("failed to write metrics")
		}
	}
}

func (s *session) space() (string, error) {
	if s.slug == "" {
		return "", errNoSpace
	}
	return s.slug, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
