package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"moodquiz-service/internal/domain"
	"moodquiz-service/internal/pkg/logger"
)

// QuizLoader fetches quiz content from a backing store.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

const metaField = "meta"

// QuizRepository caches quizzes in Redis and falls back to a loader on miss.
// Each quiz is one hash:
//
//	HSET moodquiz:quiz:{quizID} meta {quiz header JSON}
//	HSET moodquiz:quiz:{quizID} q:{questionID} {question JSON}
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	log    *logger.Logger
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration, log *logger.Logger) *QuizRepository {
	if log == nil {
		log = logger.Nop()
	}
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		log:    log.With("service", "redis.QuizRepository"),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.cached(ctx, quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := r.cached(ctx, quizID); ok {
			return quiz, nil
		}
		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		if err := r.Prime(ctx, quiz); err != nil {
			r.log.Warn("cache quiz", "quiz_id", quizID, "error", err)
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// Prime writes a quiz into the cache.
func (r *QuizRepository) Prime(ctx context.Context, quiz domain.Quiz) error {
	header := quiz
	header.Questions = nil
	meta, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("encode quiz %s: %w", quiz.ID, err)
	}
	fields := []interface{}{metaField, meta}
	for _, q := range quiz.Questions {
		raw, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("encode question %s: %w", q.ID, err)
		}
		fields = append(fields, "q:"+q.ID, raw)
	}

	key := r.key(quiz.ID)
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields...)
	if ttl := r.ttlWithJitter(); ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *QuizRepository) cached(ctx context.Context, quizID string) (domain.Quiz, bool) {
	fields, err := r.client.HGetAll(ctx, r.key(quizID)).Result()
	if err != nil || len(fields) == 0 {
		return domain.Quiz{}, false
	}
	quiz, err := decodeQuiz(fields)
	if err != nil {
		r.log.Warn("discarding unreadable cached quiz", "quiz_id", quizID, "error", err)
		return domain.Quiz{}, false
	}
	return quiz, true
}

func decodeQuiz(fields map[string]string) (domain.Quiz, error) {
	var quiz domain.Quiz
	meta, ok := fields[metaField]
	if !ok {
		return quiz, fmt.Errorf("missing %s field", metaField)
	}
	if err := json.Unmarshal([]byte(meta), &quiz); err != nil {
		return quiz, err
	}
	for name, raw := range fields {
		if !strings.HasPrefix(name, "q:") {
			continue
		}
		var q domain.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return quiz, err
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	sort.Slice(quiz.Questions, func(i, j int) bool {
		return quiz.Questions[i].Position < quiz.Questions[j].Position
	})
	return quiz, nil
}

func (r *QuizRepository) key(quizID string) string {
	return "moodquiz:quiz:" + quizID
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
