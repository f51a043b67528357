package cli

import (
	"log/slog"
	"net/http"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/foreman/internal/adapters/file"
	foremanhttp "github.com/aretw0/foreman/internal/adapters/http"
	"github.com/aretw0/foreman/internal/adapters/memory"
	"github.com/aretw0/foreman/internal/adapters/pool"
	"github.com/aretw0/foreman/internal/adapters/process"
	redisadapter "github.com/aretw0/foreman/internal/adapters/redis"
	"github.com/aretw0/foreman/internal/observability"
	"github.com/aretw0/foreman/internal/runtime"
	"github.com/aretw0/foreman/internal/scheduler"
	"github.com/aretw0/foreman/pkg/descriptor"
	"github.com/aretw0/foreman/pkg/domain"
	"github.com/aretw0/foreman/pkg/guard"
	"github.com/aretw0/foreman/pkg/ports"
	"github.com/aretw0/foreman/pkg/selector"
)

// Store is the union of the store-facing ports one backend must cover.
type Store interface {
	ports.CandidateFetcher
	ports.WorkItemFetcher
	ports.Updater
	ports.CommentWriter
	ports.InProgressQuerier
}

// Runtime is the fully wired application: every command starts from one.
type Runtime struct {
	Config     Config
	Descriptor *descriptor.Descriptor
	Store      Store
	Engine     *runtime.Engine
	Metrics    *observability.Metrics
	Handler    http.Handler
	Scheduler  *scheduler.Scheduler
	Pool       *pool.Dispatcher // nil unless dispatch.mode is pool
	Recorder   *file.Recorder

	closers []func() error
}

// BuildRuntime assembles the engine and its adapters from configuration.
func BuildRuntime(cfg Config, logger *slog.Logger) (*Runtime, error) {
	desc, err := descriptor.Load(cfg.Descriptor)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Config: cfg, Descriptor: desc}

	rt.Store = rt.buildStore(cfg)
	dispatcher := rt.buildDispatcher(cfg, logger)
	rt.Recorder = file.NewRecorder(cfg.AuditLog)

	var notifier ports.Notifier = ports.NullNotifier{}
	if cfg.Notify.Socket != "" {
		notifier = foremanhttp.NewSocketNotifier(cfg.Notify.Socket, logger)
	}

	engineCfg := runtime.Config{
		Command:      cfg.Command,
		FallbackMode: domain.FallbackMode(cfg.FallbackMode),
		AuditOnly:    cfg.AuditOnly,
	}
	rt.Engine = runtime.NewEngine(runtime.Deps{
		Descriptor: desc,
		Selector:   selector.New(desc, rt.Store, rt.Store, selector.Config{Command: cfg.Command}, logger),
		Evaluator:  guard.NewEvaluator(desc, rt.Store, logger),
		Fetcher:    rt.Store,
		Updater:    rt.Store,
		Commenter:  rt.Store,
		Notifier:   notifier,
		Recorder:   rt.Recorder,
		Dispatcher: dispatcher,
		Logger:     logger,
	}, engineCfg)

	rt.Metrics = observability.New()
	rt.Handler = foremanhttp.NewHandler(rt.Engine, rt.Metrics, logger)

	interval, err := cfg.PollInterval()
	if err != nil {
		return nil, err
	}
	rt.Scheduler = scheduler.New(rt.Engine, interval, rt.Metrics, logger)

	return rt, nil
}

func (rt *Runtime) buildStore(cfg Config) Store {
	if cfg.Redis.Addr == "" {
		return memory.New()
	}
	client := backend.NewClient(&backend.Options{Addr: cfg.Redis.Addr})
	rt.closers = append(rt.closers, client.Close)
	return redisadapter.New(client, cfg.Redis.Prefix)
}

func (rt *Runtime) buildDispatcher(cfg Config, logger *slog.Logger) ports.Dispatcher {
	spawner := process.New(
		process.WithDir(cfg.Dispatch.Dir),
		process.WithLogger(logger),
	)
	if cfg.Dispatch.Mode != "pool" {
		return spawner
	}

	claimTimeout, _ := cfg.PoolClaimTimeout() // validated at load time
	rt.Pool = pool.New(pool.Config{
		Members:      cfg.Dispatch.Pool.Members,
		StateFile:    cfg.Dispatch.Pool.StateFile,
		ProjectRoot:  cfg.Dispatch.Dir,
		Runtime:      cfg.Dispatch.Pool.Runtime,
		ClaimTimeout: claimTimeout,
	}, spawner, logger)
	return rt.Pool
}

// Close releases backend connections.
func (rt *Runtime) Close() error {
	var first error
	for _, closer := range rt.closers {
		if err := closer(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
