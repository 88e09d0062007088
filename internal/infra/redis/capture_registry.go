package redis

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"moodquiz-service/internal/app"
	"moodquiz-service/internal/pkg/logger"
)

const captureKeyPrefix = "moodquiz:capture:"

// CaptureRegistry implements app.CaptureRegistry.
// Notes:
//   - Sessions own a local camera, so the session handles stay in a local map.
//   - Redis holds a liveness marker per running capture, tagged with the
//     instance name, so operators can see which node records which attempt.
//   - Markers expire after ttl in case the node dies before cleanup.
type CaptureRegistry struct {
	client   *redis.Client
	ttl      time.Duration
	instance string
	log      *logger.Logger

	mu       sync.Mutex
	sessions map[string]app.CaptureSession
}

func NewCaptureRegistry(client *redis.Client, ttl time.Duration, instance string, log *logger.Logger) *CaptureRegistry {
	if log == nil {
		log = logger.Nop()
	}
	return &CaptureRegistry{
		client:   client,
		ttl:      ttl,
		instance: instance,
		log:      log.With("service", "redis.CaptureRegistry"),
		sessions: make(map[string]app.CaptureSession),
	}
}

func (r *CaptureRegistry) Put(attemptID string, session app.CaptureSession) {
	r.mu.Lock()
	r.sessions[attemptID] = session
	r.mu.Unlock()

	// best-effort liveness marker
	if err := r.client.Set(context.Background(), captureKeyPrefix+attemptID, r.instance, r.ttl).Err(); err != nil {
		r.log.Warn("set capture marker", "attempt_id", attemptID, "error", err)
	}
}

func (r *CaptureRegistry) Take(attemptID string) (app.CaptureSession, bool) {
	r.mu.Lock()
	session, ok := r.sessions[attemptID]
	delete(r.sessions, attemptID)
	r.mu.Unlock()

	if ok {
		r.clear(attemptID)
	}
	return session, ok
}

func (r *CaptureRegistry) Drain() []app.CaptureSession {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	out := make([]app.CaptureSession, 0, len(r.sessions))
	for id, session := range r.sessions {
		ids = append(ids, id)
		out = append(out, session)
	}
	r.sessions = make(map[string]app.CaptureSession)
	r.mu.Unlock()

	r.clear(ids...)
	return out
}

// Active lists the attempts with a live capture marker on any instance.
func (r *CaptureRegistry) Active(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	iter := r.client.Scan(ctx, 0, captureKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		instance, err := r.client.Get(ctx, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[strings.TrimPrefix(key, captureKeyPrefix)] = instance
	}
	return out, iter.Err()
}

func (r *CaptureRegistry) clear(attemptIDs ...string) {
	if len(attemptIDs) == 0 {
		return
	}
	keys := make([]string, len(attemptIDs))
	for i, id := range attemptIDs {
		keys[i] = captureKeyPrefix + id
	}
	if err := r.client.Del(context.Background(), keys...).Err(); err != nil {
		r.log.Warn("clear capture markers", "count", len(keys), "error", err)
	}
}

// Refresh extends the markers of every session held by this instance.
func (r *CaptureRegistry) Refresh(ctx context.Context) error {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	if len(ids) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for _, id := range ids {
		pipe.Set(ctx, captureKeyPrefix+id, r.instance, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// KeepAlive refreshes markers every ttl/2 until ctx is done.
func (r *CaptureRegistry) KeepAlive(ctx context.Context) error {
	ticker := time.NewTicker(max(r.ttl/2, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
				r.log.Warn("refresh capture markers", "error", err)
			}
		}
	}
}
