package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/riffle/internal/api"
	"github.com/victornm/riffle/internal/event"
	"github.com/victornm/riffle/internal/invite"
	"github.com/victornm/riffle/internal/leaderboard"
	"github.com/victornm/riffle/internal/logger"
	"github.com/victornm/riffle/internal/postgres"
	"github.com/victornm/riffle/internal/season"
	"github.com/victornm/riffle/internal/submission"
	"github.com/victornm/riffle/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port int32

		CORS struct {
			AllowOrigins []string
		}
	}

	GRPC struct {
		Port int32
	}

	Log logger.Config

	Auth struct {
		Secret string
	}

	Redis struct {
		Leaderboard struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres postgres.Config

	Leaderboard struct {
		PublishInterval time.Duration
	}

	RateLimit struct {
		RedeemPerSecond float64
		RedeemBurst     int
	}
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Auth.Secret == "" {
		return errors.New("auth.secret is required")
	}
	if c.Postgres.Addr == "" {
		return errors.New("postgres.addr is required")
	}
	if len(c.Redis.Leaderboard.Addrs) == 0 || len(c.Redis.Pubsub.Addrs) == 0 {
		return errors.New("redis addrs are required")
	}
	return nil
}

// DefaultConfig holds the values used when the config file leaves a key out.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.HTTP.CORS.AllowOrigins = []string{"*"}
	c.GRPC.Port = 8081
	c.Log.Level = "info"
	c.Log.MaxSizeMB = 100
	c.Log.MaxBackups = 3
	c.Log.MaxAgeDays = 28
	c.Redis.Leaderboard.Prefix = "local:leaderboard"
	c.Redis.Pubsub.Prefix = "local:pubsub"
	c.Leaderboard.PublishInterval = 2 * time.Second
	c.RateLimit.RedeemPerSecond = 1
	c.RateLimit.RedeemBurst = 5
	return c
}

type Server struct {
	c Config

	log *slog.Logger
	eb  *event.Bus

	infra struct {
		redis struct {
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
		}

		postgres *pgxpool.Pool
	}

	service struct {
		season      *season.Service
		submission  *submission.Service
		invite      *invite.Service
		leaderboard *leaderboard.Service
	}

	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.log = logger.Init(c.Log)
	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.leaderboard, err = connect(s.c.Redis.Leaderboard.Addrs, s.c.Redis.Leaderboard.Pass)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() (err error) {
	s.infra.postgres, err = postgres.Connect(context.Background(), s.c.Postgres)
	return err
}

func (s *Server) initService() {
	s.service.season = season.NewService(season.Config{
		DB:       s.infra.postgres,
		EventBus: s.eb,
	})

	s.service.submission = submission.NewService(submission.Config{
		EventBus: s.eb,
		DB:       s.infra.postgres,
	})

	s.service.invite = invite.NewService(invite.Config{
		DB: s.infra.postgres,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus:        s.eb,
		Seasons:         s.service.season,
		Submissions:     s.service.submission,
		Redis:           s.infra.redis.leaderboard,
		Prefix:          s.c.Redis.Leaderboard.Prefix,
		PublishInterval: s.c.Leaderboard.PublishInterval,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())
	e.Use(cors.New(cors.Config{
		AllowOrigins: s.c.HTTP.CORS.AllowOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))

	api.New(api.Config{
		Router:       e,
		EventBus:     s.eb,
		Season:       s.service.season,
		Submission:   s.service.submission,
		Invite:       s.service.invite,
		Leaderboard:  s.service.leaderboard,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
		AuthSecret:   s.c.Auth.Secret,
		RedeemLimit:  rate.Limit(s.c.RateLimit.RedeemPerSecond),
		RedeemBurst:  s.c.RateLimit.RedeemBurst,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptors(s.log)...)
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	// Handlers may still publish to Redis or read Postgres.
	s.eb.Stop()

	s.infra.postgres.Close()
	for _, r := range []redis.UniversalClient{s.infra.redis.leaderboard, s.infra.redis.pubsub} {
		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
