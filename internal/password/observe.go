package password

import (
	"context"
	"time"
)

// Observed は Hasher の処理時間を observe に通知するラッパーです。
type Observed struct {
	next    Hasher
	observe func(time.Duration)
}

// WithObserver は h の Hash / Verify にかかった時間を observe に渡す Hasher を返します。
func WithObserver(h Hasher, observe func(time.Duration)) *Observed {
	return &Observed{next: h, observe: observe}
}

func (o *Observed) Hash(ctx context.Context, plaintext string) (string, error) {
	start := time.Now()
	defer func() { o.observe(time.Since(start)) }()
	return o.next.Hash(ctx, plaintext)
}

func (o *Observed) Verify(ctx context.Context, plaintext, hashed string) (bool, error) {
	start := time.Now()
	defer func() { o.observe(time.Since(start)) }()
	return o.next.Verify(ctx, plaintext, hashed)
}
