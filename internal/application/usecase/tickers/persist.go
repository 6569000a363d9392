package tickers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"tickerwatch/internal/application/port"
	"tickerwatch/internal/domain/model"
)

func (s *Store) persistList(ctx context.Context, names []string) {
	if err := s.deps.KV.SetOrClear(ctx, port.KeyTickerList, names); err != nil {
		log.Warn().Err(err).Msg("persist ticker list failed")
	}
}

// LoadCoinMetadata 优先读取持久化缓存，否则请求网关并写回缓存。
// 同一会话内加载成功后再次调用直接返回。
func (s *Store) LoadCoinMetadata(ctx context.Context) error {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()

	if s.metaLoaded {
		return nil
	}

	if meta, ok := s.cachedMetadata(ctx); ok {
		s.setMetadata(meta)
		log.Info().Int("coins", len(meta)).Msg("coin metadata loaded from cache")
		return nil
	}

	meta, err := s.deps.Gateway.FetchCoinMetadata(ctx)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		s.notify()
		log.Error().Err(err).Msg("fetch coin metadata failed")
		return fmt.Errorf("fetch coin metadata: %w", err)
	}

	if b, err := json.Marshal(meta); err == nil {
		if err := s.deps.KV.Set(ctx, port.KeyCoinMetadata, string(b)); err != nil {
			log.Warn().Err(err).Msg("persist coin metadata failed")
		}
	}

	s.setMetadata(meta)
	log.Info().Int("coins", len(meta)).Msg("coin metadata fetched")
	return nil
}

func (s *Store) cachedMetadata(ctx context.Context) (model.CoinMetadata, bool) {
	raw, ok, err := s.deps.KV.Get(ctx, port.KeyCoinMetadata)
	if err != nil {
		log.Warn().Err(err).Msg("read coin metadata cache failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var meta model.CoinMetadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		log.Warn().Err(err).Msg("coin metadata cache corrupt, refetching")
		return nil, false
	}
	return meta, true
}

func (s *Store) setMetadata(meta model.CoinMetadata) {
	indexed := make(model.CoinMetadata, len(meta))
	for k, v := range meta {
		indexed[model.NormalizeSymbol(k)] = v
	}
	s.mu.Lock()
	s.meta = indexed
	s.metaLoaded = true
	s.mu.Unlock()
}

// MetadataLoaded 元数据是否已在本会话加载
func (s *Store) MetadataLoaded() bool {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	return s.metaLoaded
}

// Rehydrate 读取持久化列表，批量添加并逐个订阅。
// 返回持久化的 symbol；拉取价格失败时也返回它们（连同错误），集合保持不变。
// 返回 nil, nil 表示没有保存过列表。
func (s *Store) Rehydrate(ctx context.Context) ([]string, error) {
	raw, ok, err := s.deps.KV.Get(ctx, port.KeyTickerList)
	if err != nil {
		return nil, fmt.Errorf("read ticker list: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var symbols []string
	if err := json.Unmarshal([]byte(raw), &symbols); err != nil {
		return nil, fmt.Errorf("decode ticker list: %w", err)
	}
	if len(symbols) == 0 {
		return nil, nil
	}

	if err := s.addTickers(ctx, symbols, false); err != nil {
		return symbols, err
	}
	s.subscribeAll(symbols)
	return symbols, nil
}

// Restore 启动时恢复跟踪列表：有保存的列表就只用它（即使价格拉取失败），
// 从未保存过时才使用 fallback
func (s *Store) Restore(ctx context.Context, fallback []string) ([]string, error) {
	restored, err := s.Rehydrate(ctx)
	if err != nil || len(restored) > 0 {
		return restored, err
	}
	if len(fallback) == 0 {
		return nil, nil
	}
	if err := s.Track(ctx, fallback...); err != nil {
		return fallback, err
	}
	return fallback, nil
}

// Track 批量添加后逐个订阅（用于启动时的初始列表）
func (s *Store) Track(ctx context.Context, symbols ...string) error {
	if err := s.addTickers(ctx, symbols, false); err != nil {
		return err
	}
	s.subscribeAll(symbols)
	return nil
}

func (s *Store) subscribeAll(symbols []string) {
	for _, sym := range symbols {
		if err := s.deps.Stream.Subscribe(sym); err != nil {
			log.Warn().Err(err).Str("symbol", sym).Msg("subscribe failed")
		}
	}
}
