package svc

import (
	"context"
	"errors"
	"fmt"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"tickerwatch/internal/application/port"
	"tickerwatch/internal/application/usecase/tickers"
	"tickerwatch/internal/infrastructure/config"
	"tickerwatch/internal/infrastructure/exchange/cryptocompare"
	"tickerwatch/internal/infrastructure/relay"
	"tickerwatch/internal/infrastructure/storage"
	"tickerwatch/internal/infrastructure/storage/composite"
	pgrepo "tickerwatch/internal/infrastructure/storage/postgres"
	redisrepo "tickerwatch/internal/infrastructure/storage/redis"
	sqliterepo "tickerwatch/internal/infrastructure/storage/sqlite"
	"tickerwatch/internal/interfaces/console"
)

type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	// 基础设施层
	kv       port.KVStore
	gateway  *cryptocompare.RESTClient
	streamer *cryptocompare.Streamer
	relay    *relay.Relay
	client   *relay.Client

	// 应用层
	Store *tickers.Store
	Sink  port.Sink

	closerChain []func() error
}

// New 创建并初始化 ServiceContext；Relay 事件循环在这里启动，上游连接在 Run 中建立
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		Sink:        console.NewSink(),
		closerChain: make([]func() error, 0),
	}
	if err := sc.initializeComponents(); err != nil {
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

func (sc *ServiceContext) initializeComponents() error {
	if err := sc.initializeStorage(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInitFailed, err)
	}

	sc.gateway = cryptocompare.NewRESTClient(sc.Config.API.RestURL, sc.Config.API.APIKey)
	sc.streamer = cryptocompare.NewStreamer(sc.Config.API.WsURL, sc.Config.API.APIKey, cryptocompare.RetryConfig{
		MaxRetries:   sc.Config.Stream.ReconnectMaxRetries,
		InitialDelay: sc.Config.InitialDelay(),
		MaxDelay:     sc.Config.MaxDelay(),
	})

	sc.relay = relay.New(sc.streamer, sc.Config.Stream.PortBuffer)
	relayCtx, stopRelay := context.WithCancel(sc.Ctx)
	go func() {
		if err := sc.relay.Run(relayCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("relay stopped")
		}
	}()
	sc.closerChain = append(sc.closerChain, func() error {
		stopRelay()
		<-sc.relay.Done()
		return nil
	})

	client, err := sc.relay.Connect(sc.Ctx, "tickers")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRelayConnectFailed, err)
	}
	sc.client = client
	sc.closerChain = append(sc.closerChain, client.Close)

	sc.Store = tickers.NewStore(tickers.Deps{
		Gateway:          sc.gateway,
		KV:               sc.kv,
		Stream:           client,
		MaxGraphElements: sc.Config.App.MaxGraphElements,
		PollEvery:        sc.Config.PollEvery(),
	})

	log.Info().
		Int("max_graph_elements", sc.Config.App.MaxGraphElements).
		Dur("poll_every", sc.Config.PollEvery()).
		Msg("✓ All components initialized")
	return nil
}

// initializeStorage 初始化启用的 KV 后端；都未启用时使用内存存储
func (sc *ServiceContext) initializeStorage() error {
	var backends []port.KVStore

	if sc.Config.Storage.Redis.Enabled {
		repo, err := sc.initRedis()
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		backends = append(backends, repo)
	}
	if sc.Config.Storage.SQLite.Enabled {
		repo, err := sc.initSQLite()
		if err != nil {
			return fmt.Errorf("sqlite initialization failed: %w", err)
		}
		backends = append(backends, repo)
	}
	if sc.Config.Storage.Postgres.Enabled {
		repo, err := sc.initPostgres()
		if err != nil {
			return fmt.Errorf("postgres initialization failed: %w", err)
		}
		backends = append(backends, repo)
	}

	switch len(backends) {
	case 0:
		log.Warn().Msg("no persistent storage enabled, using in-memory store")
		sc.kv = storage.NewInMemoryKV()
	case 1:
		sc.kv = backends[0]
	default:
		sc.kv = composite.New(backends...)
	}
	return nil
}

func (sc *ServiceContext) initRedis() (*redisrepo.Repo, error) {
	rc := sc.Config.Storage.Redis
	rdb := redisclient.NewClient(&redisclient.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})

	ctx, cancel := context.WithTimeout(sc.Ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	repo := redisrepo.New(rdb, rc.Prefix, sc.Config.RedisTTL())
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return repo.Close()
	})

	log.Info().Str("addr", rc.Addr).Int("db", rc.DB).Msg("✓ Redis initialized")
	return repo, nil
}

func (sc *ServiceContext) initSQLite() (*sqliterepo.Repo, error) {
	repo, err := sqliterepo.New(sc.Config.Storage.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite repo creation failed: %w", err)
	}
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing sqlite connection")
		return repo.Close()
	})

	log.Info().Str("path", sc.Config.Storage.SQLite.Path).Msg("✓ SQLite initialized")
	return repo, nil
}

func (sc *ServiceContext) initPostgres() (*pgrepo.Repo, error) {
	repo, err := pgrepo.New(sc.Config.Storage.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres repo creation failed: %w", err)
	}
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing postgres connection")
		return repo.Close()
	})

	log.Info().Msg("✓ Postgres initialized")
	return repo, nil
}

// KV 当前使用的持久化存储
func (sc *ServiceContext) KV() port.KVStore { return sc.kv }

// Relay 供其他本地消费者 Connect
func (sc *ServiceContext) Relay() *relay.Relay { return sc.relay }

// Run 建立上游连接并驱动 Store，阻塞直到 ctx 结束或任一部分失败
func (sc *ServiceContext) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// 上游停止后 Store 继续运行，展示已关闭状态
		if err := sc.streamer.Run(gctx, sc.relay); err != nil {
			log.Error().Err(err).Msg("upstream stream stopped")
		}
		return nil
	})
	g.Go(func() error {
		return sc.Store.Run(gctx)
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close 按初始化的相反顺序释放资源
func (sc *ServiceContext) Close() error {
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil {
			log.Error().Err(err).Msg("error closing resource")
		}
	}
	sc.closerChain = nil
	return nil
}
