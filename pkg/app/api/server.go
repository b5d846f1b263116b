// Package api implements app.Runner for the API server process.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apphttp "github.com/starkbridge/middleware/pkg/app/http"
	"github.com/starkbridge/middleware/pkg/auth"
	"github.com/starkbridge/middleware/pkg/bridge"
	bridgeservice "github.com/starkbridge/middleware/pkg/bridge/service"
	"github.com/starkbridge/middleware/pkg/bridgestore"
	"github.com/starkbridge/middleware/pkg/cache"
	"github.com/starkbridge/middleware/pkg/chains"
	"github.com/starkbridge/middleware/pkg/chains/evm"
	"github.com/starkbridge/middleware/pkg/chains/starknet"
	"github.com/starkbridge/middleware/pkg/config"
	"github.com/starkbridge/middleware/pkg/estimator"
	"github.com/starkbridge/middleware/pkg/notify"
	"github.com/starkbridge/middleware/pkg/pgutil"
	"github.com/starkbridge/middleware/pkg/pricefeed"
	tokenservice "github.com/starkbridge/middleware/pkg/token/service"
	"github.com/starkbridge/middleware/pkg/tokenstore"
	"github.com/starkbridge/middleware/pkg/webhook"
)

const defaultRequestTimeout = 60

// Server holds cfg to init the api server.
type Server struct {
	cfg *config.Config
}

// NewServer initializes new api server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("api server config is nil")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting API server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
	)

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() { _ = db.Close() }()
	logger.Info("Connected to database",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database),
	)

	cch, err := cache.NewRedis(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	registry, err := s.buildAdapters(logger)
	if err != nil {
		return err
	}

	issuer := auth.NewIssuer(cfg.Auth)

	hub := notify.NewHub(logger)
	hub.Start()
	defer hub.Stop()

	tokenSvc := tokenservice.New(
		tokenstore.NewPostgresStore(db),
		cch,
		pricefeed.NewClient(cfg.PriceFeed),
		hub,
		cfg.PriceFeed,
		logger,
	)
	tokenSvc.Start()
	defer tokenSvc.Stop()

	txStore := bridgestore.NewStore(db)
	bridgeSvc := bridgeservice.NewService(
		txStore,
		tokenSvc,
		registry,
		estimator.New(),
		hub,
		logger,
	)

	sweeper := bridgeservice.NewSweeper(txStore, hub, cfg.Bridge, logger)
	sweeper.Start()
	defer sweeper.Stop()

	router := s.setupRouter(bridgeSvc, tokenSvc, hub, issuer, logger)

	return apphttp.ServeAndWait(ctx, router, logger, &cfg.Server)
}

// buildAdapters connects every configured chain and registers its adapter.
// EVM chains without an rpc_url are simply not registered.
func (s *Server) buildAdapters(logger *zap.Logger) (*chains.Registry, error) {
	adapters := make([]chains.Adapter, 0, len(bridge.Chains))

	for _, chain := range []bridge.Chain{bridge.ChainEthereum, bridge.ChainPolygon, bridge.ChainArbitrum} {
		chainCfg, ok := s.cfg.EVMChain(string(chain))
		if !ok {
			logger.Info("EVM chain not configured, skipping", zap.String("chain", string(chain)))
			continue
		}
		client, err := evm.NewClient(chain, &chainCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("connect %s: %w", chain, err)
		}
		adapters = append(adapters, client)
		logger.Info("Connected to EVM chain",
			zap.String("chain", string(chain)),
			zap.Int64("chain_id", chainCfg.ChainID),
		)
	}

	adapters = append(adapters, starknet.NewClient(&s.cfg.StarkNet, logger))
	logger.Info("Connected to StarkNet", zap.String("rpc_url", s.cfg.StarkNet.RPCURL))

	return chains.NewRegistry(adapters...), nil
}

func (s *Server) setupRouter(
	bridgeSvc bridgeservice.Service,
	tokenSvc *tokenservice.Service,
	hub *notify.Hub,
	issuer *auth.Issuer,
	logger *zap.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Handle("/metrics", promhttp.Handler())

	authHandler := auth.NewHandler(issuer, logger)
	bridgeHandler := bridgeservice.NewHandler(bridgeSvc, logger)
	tokenHandler := tokenservice.NewHandler(tokenSvc, logger)
	webhookHandler := webhook.NewHandler(webhook.NewService(bridgeSvc, tokenSvc, logger), logger)
	wsHandler := notify.NewHandler(hub, issuer, logger)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(time.Second * defaultRequestTimeout))

		r.Route("/api", func(r chi.Router) {
			r.Post("/auth/login", apphttp.HandleError(authHandler.Login))
			r.Route("/bridge", func(r chi.Router) {
				bridgeHandler.Routes(r, issuer)
			})
			r.Route("/tokens", tokenHandler.Routes)
		})

		r.Route("/webhooks", webhookHandler.Routes)
	})

	// Websocket connections outlive the request timeout, so the endpoint is
	// mounted outside the timed group.
	r.Get("/ws", wsHandler.ServeWS)

	return r
}
