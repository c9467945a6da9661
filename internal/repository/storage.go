package repository

import (
	"context"

	"diagdesk/internal/domain"
)

// Scoped prefixes every key, giving each API session its own slice of a shared store.
type Scoped struct {
	inner  domain.LocalStorage
	prefix string
}

func NewScoped(inner domain.LocalStorage, prefix string) *Scoped {
	return &Scoped{inner: inner, prefix: prefix}
}

func (s *Scoped) Get(ctx context.Context, key string) (string, bool, error) {
	return s.inner.Get(ctx, s.prefix+key)
}

func (s *Scoped) Set(ctx context.Context, key, value string) error {
	return s.inner.Set(ctx, s.prefix+key, value)
}

func (s *Scoped) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, s.prefix+key)
}
