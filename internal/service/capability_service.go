package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PrivilegeSource lists the capability strings granted to one role.
type PrivilegeSource interface {
	ForRole(ctx context.Context, role string) ([]string, error)
}

// CapabilityResolver expands role names into capability sets. Lookups per
// role are cached in Redis under caps:<ROLE> when a client is configured.
type CapabilityResolver struct {
	privs PrivilegeSource
	rdb   *redis.Client
	ttl   time.Duration
	log   *zap.Logger
}

// NewCapabilityResolver accepts a nil Redis client, which disables caching.
func NewCapabilityResolver(privs PrivilegeSource, rdb *redis.Client, ttl time.Duration, log *zap.Logger) *CapabilityResolver {
	if privs == nil {
		panic("nil PrivilegeSource passed to NewCapabilityResolver")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CapabilityResolver{privs: privs, rdb: rdb, ttl: ttl, log: log.Named("capabilities")}
}

func capKey(role string) string { return "caps:" + strings.ToUpper(role) }

// Resolve returns the union of the capabilities of every role.
func (r *CapabilityResolver) Resolve(ctx context.Context, roles []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for _, role := range roles {
		if role == "" {
			continue
		}
		caps, err := r.forRole(ctx, role)
		if err != nil {
			return nil, err
		}
		for _, c := range caps {
			out[c] = struct{}{}
		}
	}
	return out, nil
}

func (r *CapabilityResolver) forRole(ctx context.Context, role string) ([]string, error) {
	key := capKey(role)
	if r.rdb != nil {
		raw, err := r.rdb.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var caps []string
			if json.Unmarshal(raw, &caps) == nil {
				return caps, nil
			}
		case !errors.Is(err, redis.Nil):
			r.log.Warn("capability cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	caps, err := r.privs.ForRole(ctx, strings.ToUpper(role))
	if err != nil {
		return nil, fmt.Errorf("load privileges for %s: %w", role, err)
	}
	if r.rdb != nil {
		if b, err := json.Marshal(caps); err == nil {
			if err := r.rdb.Set(ctx, key, b, r.ttl).Err(); err != nil {
				r.log.Warn("capability cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return caps, nil
}

