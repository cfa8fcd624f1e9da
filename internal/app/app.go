package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"interior/internal/auth"
	"interior/internal/config"
	"interior/internal/ledger"
	"interior/internal/llm"
	"interior/internal/model"
	"interior/internal/payment"
	"interior/internal/ratelimit"
	"interior/internal/service"
	"interior/internal/storage"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	LedgerBackendGorm = "gorm"
	LedgerBackendPgx  = "pgx"

	RateLimitMemory = "memory"
	RateLimitRedis  = "redis"
)

// App 持有进程内共享的依赖，server 和 worker 共用一套装配。
type App struct {
	Config   config.Config
	Repo     model.Repository
	Ledger   *ledger.Ledger
	Storage  storage.Storage
	Uploader *storage.Uploader
	Provider llm.Provider
	Tokens   *auth.Manager

	Auth       *service.AuthService
	Generation *service.GenerationService
	Tracking   *service.TrackingService
	Payment    *service.PaymentService
	Credits    *service.CreditService
	Trial      *service.TrialService

	closers []func()
}

// New 按配置装配 repo → ledger → storage → provider → services。
func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{Config: cfg}

	repo, err := model.InitRepository(&cfg)
	if err != nil {
		return nil, fmt.Errorf("init repository: %w", err)
	}
	a.Repo = repo

	store, err := newLedgerStore(ctx, cfg, repo)
	if err != nil {
		a.Close()
		return nil, err
	}
	if pg, ok := store.(*ledger.PGStore); ok {
		a.closers = append(a.closers, pg.Close)
	}
	a.Ledger = ledger.New(store)

	a.Storage, err = storage.NewStorage(cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	a.Uploader = storage.NewUploader(a.Storage, &http.Client{Timeout: 60 * time.Second})

	adapter, err := newProvider(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Provider = adapter

	a.Tokens, err = auth.NewManagerFromConfig(cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init jwt: %w", err)
	}

	prices, err := payment.NewPriceTable(cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("parse price table: %w", err)
	}
	var gateway payment.Gateway
	if gw, err := payment.NewStripeGateway(cfg); err != nil {
		if !errors.Is(err, payment.ErrNotConfigured) {
			a.Close()
			return nil, err
		}
		logrus.WithError(err).Warn("payment gateway disabled")
	} else {
		gateway = gw
	}

	limiter, err := a.newLimiter(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Auth = service.NewAuthService(repo, a.Ledger, a.Tokens, cfg.SignupBonusCredits)
	a.Generation = service.NewGenerationService(repo, a.Ledger, a.Uploader, a.Provider, service.GenerationOptions{
		RefundFailed: cfg.RefundFailedGenerations,
	})
	a.Tracking = service.NewTrackingService(repo, a.Ledger, a.Provider, a.Uploader, service.TrackingOptions{
		RefundFailed:  cfg.RefundFailedGenerations,
		RehostOutputs: cfg.RehostOutputs,
		MaxAwait:      cfg.PollMaxElapsed,
	})
	a.Payment = service.NewPaymentService(repo, a.Ledger, gateway, prices, service.PaymentOptions{
		HDPriceID:  cfg.StripeHDPriceID,
		SuccessURL: cfg.CheckoutSuccessURL,
		CancelURL:  cfg.CheckoutCancelURL,
	})
	a.Credits = service.NewCreditService(repo, a.Ledger)
	// 匿名试用单独计轮询预算，不能消耗付费生成的额度
	a.Trial = service.NewTrialService(adapter.Scoped(llm.GuardScopeTrial), ratelimit.NewChecker(limiter), cfg.TrialMaxRequests,
		time.Duration(cfg.TrialWindowSeconds)*time.Second)

	return a, nil
}

// Close 释放连接池等资源
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newLedgerStore(ctx context.Context, cfg config.Config, repo model.Repository) (ledger.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.LedgerBackend)) {
	case "", LedgerBackendGorm:
		return repo, nil
	case LedgerBackendPgx:
		dsn := strings.TrimSpace(cfg.LedgerPGURL)
		if dsn == "" {
			dsn = strings.TrimSpace(cfg.DSNURL)
		}
		if dsn == "" {
			return nil, errors.New("LEDGER_BACKEND=pgx requires LEDGER_PG_URL or DSN_URL")
		}
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		store, err := ledger.NewPGStore(connectCtx, dsn)
		if err != nil {
			return nil, fmt.Errorf("init pgx ledger: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported ledger backend: %s", cfg.LedgerBackend)
	}
}

func newProvider(cfg config.Config) (*llm.Adapter, error) {
	queue, err := llm.NewFalQueue(cfg, &http.Client{Timeout: 2 * cfg.ProviderTimeout})
	if err != nil {
		return nil, fmt.Errorf("init fal queue: %w", err)
	}
	guard := llm.NewPollGuard(llm.GuardOptions{
		MaxCount:   cfg.PollMaxCount,
		MaxElapsed: cfg.PollMaxElapsed,
		Capacity:   cfg.PollGuardCapacity,
	})
	adapter, err := llm.NewAdapter(queue, guard, cfg.ProviderTimeout)
	if err != nil {
		return nil, fmt.Errorf("init provider adapter: %w", err)
	}
	return adapter, nil
}

func (a *App) newLimiter(cfg config.Config) (ratelimit.Limiter, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.RateLimitBackend)) {
	case "", RateLimitMemory:
		return ratelimit.NewLocalLimiter(nil), nil
	case RateLimitRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil {
				logrus.WithError(err).Warn("failed to close redis client")
			}
		})
		return ratelimit.NewRedisLimiter(client, "interior:ratelimit"), nil
	default:
		return nil, fmt.Errorf("unsupported rate limit backend: %s", cfg.RateLimitBackend)
	}
}
