// Package app wires configuration into the dialogue engine. The server,
// the worker and thinkctl share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/garywanggali/think-first/internal/ai"
	"github.com/garywanggali/think-first/internal/artifact"
	"github.com/garywanggali/think-first/internal/config"
	"github.com/garywanggali/think-first/internal/db"
	"github.com/garywanggali/think-first/internal/dialogue"
	"github.com/garywanggali/think-first/internal/media"
	"github.com/garywanggali/think-first/internal/reasoning"
	"github.com/garywanggali/think-first/internal/store/redisstore"
)

const providerMock = "mock"

type App struct {
	Cfg     config.Config
	Log     *zap.Logger
	DB      *gorm.DB
	Media   *media.Local
	Service *dialogue.Service

	closers []func() error
}

// New connects storage and builds the dialogue service. The caller owns
// the returned App and must Close it.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	a := &App{Cfg: cfg, Log: log, DB: gdb}
	if sqlDB, err := gdb.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}

	svc, err := a.build(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Service = svc
	return a, nil
}

func (a *App) build(ctx context.Context) (*dialogue.Service, error) {
	cfg := a.Cfg

	m, err := media.NewLocal(cfg.MediaRoot, cfg.MediaURL)
	if err != nil {
		return nil, err
	}
	a.Media = m

	reasoner, err := NewReasoner(ctx, cfg, NewRegistry(cfg))
	if err != nil {
		return nil, err
	}
	artifacts, err := NewArtifacts(cfg, a.Log)
	if err != nil {
		return nil, err
	}
	policy, err := dialogue.PolicyByName(cfg.PassPolicy, cfg.PassThreshold)
	if err != nil {
		return nil, err
	}

	a.Log.Info("dialogue engine configured",
		zap.String("reasoning", cfg.ReasoningProvider),
		zap.String("artifacts", cfg.ArtifactProvider),
		zap.String("pass_policy", policy.Name()))

	return dialogue.NewService(dialogue.NewRepo(a.DB), reasoner, artifacts, dialogue.Options{
		Policy:        policy,
		Locker:        a.locker(ctx),
		Resolver:      m,
		Log:           a.Log.Named("dialogue"),
		WindowSize:    cfg.ContextWindowSize,
		TopicMaxRunes: cfg.TopicMaxRunes,
	}), nil
}

// locker prefers redis so API and worker processes share one lock; without
// redis the lock is process-local.
func (a *App) locker(ctx context.Context) dialogue.Locker {
	cfg := a.Cfg
	if cfg.RedisAddr == "" {
		return dialogue.NewMemoryLocker()
	}
	rs := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB).
		WithTTL(4*cfg.GatewayTimeout + 30*time.Second)

	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rs.Ping(pctx); err != nil {
		a.Log.Warn("redis unavailable, using in-process lock", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		_ = rs.Close()
		return dialogue.NewMemoryLocker()
	}
	a.closers = append(a.closers, rs.Close)
	return rs
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewRegistry registers every supported chat backend by name. The model
// argument overrides the configured model.
func NewRegistry(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()
	pick := func(model, def string) string {
		if m := strings.TrimSpace(model); m != "" {
			return m
		}
		return def
	}

	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, pick(model, cfg.OllamaModel)), nil
	})
	reg.Register("openrouter", func(ctx context.Context, model string) (ai.Provider, error) {
		if cfg.OpenRouterAPIKey == "" {
			return nil, errors.New("OPENROUTER_API_KEY not set")
		}
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey,
			pick(model, cfg.OpenRouterModel), cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	})
	reg.Register("deepseek", func(ctx context.Context, model string) (ai.Provider, error) {
		if cfg.DeepSeekAPIKey == "" {
			return nil, errors.New("DEEPSEEK_API_KEY not set")
		}
		return ai.NewOpenAIProvider("deepseek", cfg.DeepSeekBaseURL, cfg.DeepSeekAPIKey, pick(model, cfg.DeepSeekModel)), nil
	})
	return reg
}

// NewReasoner builds the Reasoning Gateway; "mock" is the deterministic stub.
func NewReasoner(ctx context.Context, cfg config.Config, reg *ai.Registry) (reasoning.Gateway, error) {
	if strings.EqualFold(cfg.ReasoningProvider, providerMock) {
		return &reasoning.Stub{
			Opening:  dialogue.DefaultProbe,
			Visual:   "A minimalist diagram of the idea, clean lines on a white background.",
			FollowUp: "What do you think would happen if we changed just one condition?",
		}, nil
	}
	p, err := reg.Get(ctx, cfg.ReasoningProvider, "")
	if err != nil {
		return nil, fmt.Errorf("reasoning provider: %w", err)
	}
	return reasoning.NewLLM(p, cfg.GatewayTimeout), nil
}

func NewArtifacts(cfg config.Config, log *zap.Logger) (artifact.Gateway, error) {
	siliconflow := func() *artifact.SiliconFlow {
		return artifact.NewSiliconFlow(cfg.SiliconFlowBaseURL, cfg.SiliconFlowAPIKey,
			cfg.ImageModel, cfg.VisionModel, cfg.VisionFallback, cfg.GatewayTimeout, log.Named("siliconflow"))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.ArtifactProvider)) {
	case "", "siliconflow":
		return siliconflow(), nil
	case "pollinations":
		var vision artifact.Gateway
		if cfg.SiliconFlowAPIKey != "" {
			vision = siliconflow()
		}
		return artifact.NewPollinations(vision), nil
	case providerMock:
		return &artifact.Stub{Analysis: "An uploaded picture."}, nil
	default:
		return nil, fmt.Errorf("unsupported ARTIFACT_PROVIDER=%q", cfg.ArtifactProvider)
	}
}
