package composite

import (
	"context"

	"tickerwatch/internal/application/port"
)

// Repo writes to every backend and reads from the first one holding the key.
type Repo struct {
	repos []port.KVStore
}

func New(repos ...port.KVStore) *Repo {
	// nil repos are allowed; filter in constructor for safety
	out := make([]port.KVStore, 0, len(repos))
	for _, r := range repos {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Repo{repos: out}
}

func (r *Repo) Get(ctx context.Context, key string) (string, bool, error) {
	var firstErr error
	for _, repo := range r.repos {
		v, ok, err := repo.Get(ctx, key)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			return v, true, nil
		}
	}
	return "", false, firstErr
}

func (r *Repo) Set(ctx context.Context, key, value string) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.Set(ctx, key, value); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) SetOrClear(ctx context.Context, key string, values []string) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.SetOrClear(ctx, key, values); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) Close() error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ port.KVStore = (*Repo)(nil)
