package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"tickerwatch/internal/infrastructure/config"
	"tickerwatch/internal/infrastructure/logger"
	"tickerwatch/internal/infrastructure/svc"
	"tickerwatch/internal/interfaces/console"
)

func main() {
	logger.Setup()

	configPath := flag.String("config", "configs/config.toml", "path to config.toml / config.yaml")
	noColor := flag.Bool("no-color", false, "disable ANSI colors")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.SetLevel(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("service initialization failed")
	}
	defer sc.Close()

	runErr := make(chan error, 1)
	go func() { runErr <- sc.Run(ctx) }()

	// 元数据失败不阻止启动，ticker 只是没有全名和图标
	if err := sc.Store.LoadCoinMetadata(ctx); err != nil {
		log.Warn().Err(err).Msg("coin metadata unavailable")
	}

	if restored, err := sc.Store.Restore(ctx, cfg.Symbols.List); err != nil {
		log.Warn().Err(err).Strs("symbols", restored).Msg("restore ticker list failed")
	}
	if syms := sc.Store.Symbols(); len(syms) > 0 {
		sc.Store.SelectTicker(syms[0])
	}

	log.Info().
		Str("config", *configPath).
		Int("tickers", len(sc.Store.Symbols())).
		Int("max_graph_elements", sc.Store.MaxGraphElements()).
		Msg("tickerwatch started")

	presenter := console.NewPresenter(sc.Store, sc.Sink, console.NewRenderer(!*noColor), cfg.ChartEvery())
	go func() {
		if err := presenter.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("presenter exited")
		}
	}()

	if err := <-runErr; err != nil {
		log.Error().Err(err).Msg("tickerwatch exited")
	}
}
