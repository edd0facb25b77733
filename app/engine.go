package app

import (
	"context"
	"net/http"

	"github.com/fiffu/repowatch/config"
	"github.com/fiffu/repowatch/lib"
	"github.com/fiffu/repowatch/lib/dispatch"
	"github.com/fiffu/repowatch/lib/fetcher"
	"github.com/fiffu/repowatch/lib/github"
	"github.com/fiffu/repowatch/lib/notify"
	"github.com/fiffu/repowatch/lib/poller"
	"github.com/fiffu/repowatch/lib/processor"
	"github.com/fiffu/repowatch/lib/queue"
	"github.com/fiffu/repowatch/lib/router"
	"github.com/fiffu/repowatch/lib/stackoverflow"
	"github.com/fiffu/repowatch/lib/statecache"
	"github.com/fiffu/repowatch/lib/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Engine provides everything between the database and the HTTP API.
var Engine = fx.Options(
	fx.Provide(NewStateBackend),
	fx.Provide(NewStateCache),
	fx.Provide(NewFetcher),
	fx.Provide(NewGitHubClient),
	fx.Provide(NewStackOverflowClient),
	fx.Provide(store.New),
	fx.Provide(NewProcessor),
	fx.Provide(NewDispatcher),
	fx.Provide(router.New),
	fx.Provide(notify.NewFormatter),
	fx.Provide(lib.NewService),
	fx.Provide(NewQueue),
	fx.Provide(poller.NewPoller),
)

func NewStateBackend(cfg *config.Config, log *zap.Logger, db *gorm.DB) statecache.Backend {
	switch cfg.State.Backend {
	case "memory":
		log.Info("Using in-memory state cache, cursors will not survive restarts")
		return statecache.NewMemoryBackend()
	case "sqlite", "":
		return statecache.NewSQLBackend(db)
	default:
		log.Sugar().Panicf("unknown state backend %q", cfg.State.Backend)
		return nil
	}
}

func NewStateCache(cfg *config.Config, backend statecache.Backend) *statecache.Cache {
	return statecache.New(backend, cfg.State.TTL)
}

func NewFetcher(cfg *config.Config, log *zap.Logger, transport http.RoundTripper, backend statecache.Backend) fetcher.Fetcher {
	raw := fetcher.NewHTTPClient(transport, cfg.Fetch.Timeout, log)
	opts := fetcher.Options{
		RetryMax:   cfg.Fetch.RetryMax,
		RetryDelay: cfg.Fetch.RetryDelay,
		CacheTTL:   cfg.Fetch.CacheTTL,
	}
	return fetcher.Chain(raw, backend, opts, log)
}

func NewGitHubClient(cfg *config.Config, f fetcher.Fetcher) *github.Client {
	return github.NewClient(f, cfg.GitHub.APIURL)
}

func NewStackOverflowClient(cfg *config.Config, f fetcher.Fetcher) *stackoverflow.Client {
	se := cfg.StackExchange
	return stackoverflow.NewClient(f, se.APIURL, se.Site, se.Key, se.Filter)
}

func NewProcessor(gh *github.Client, so *stackoverflow.Client, cache *statecache.Cache) *processor.Processor {
	return processor.New(gh, so, cache)
}

func NewDispatcher(st *store.Store, proc *processor.Processor) *dispatch.Dispatcher {
	return dispatch.New(st, proc)
}

func NewQueue(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, svc *lib.Service) *queue.Queue {
	q := queue.New(log, svc.Handle, cfg.Queue.Partitions, cfg.Queue.Depth)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			q.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Sugar().Info("Draining task queue")
			q.Close()
			return nil
		},
	})
	return q
}
