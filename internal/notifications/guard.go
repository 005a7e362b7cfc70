package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/projectdash/dashboard-backend/pkg/redis"
)

type noticeStore interface {
	redis.ClaimStore
	NoticeKey(scope, id string) string
}

// Guard claims a notice key before sending so redeliveries of the same event
// produce one message.
type Guard struct {
	store noticeStore
	ttl   time.Duration
}

func NewGuard(store noticeStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("notice store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// Claim returns true when the caller owns the key and should send.
func (g *Guard) Claim(ctx context.Context, key string) (bool, error) {
	return g.store.SetNX(ctx, g.store.NoticeKey("sent", key), "1", g.ttl)
}

// Release frees a claim after a failed send so a later delivery can retry it.
func (g *Guard) Release(ctx context.Context, key string) error {
	return g.store.Del(ctx, g.store.NoticeKey("sent", key))
}
