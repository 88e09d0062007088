package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"moodquiz-service/internal/domain"
	"moodquiz-service/internal/pkg/logger"
)

const writeTimeout = 30 * time.Second

// SummaryStore writes emotion summaries as JSON objects in a bucket. Objects
// are created with a does-not-exist precondition so each attempt gets exactly
// one summary.
type SummaryStore struct {
	client *storage.Client
	bucket string
	prefix string
	log    *logger.Logger
}

func NewSummaryStore(ctx context.Context, bucket, prefix string, log *logger.Logger, opts ...option.ClientOption) (*SummaryStore, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket not configured")
	}
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SummaryStore{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		log:    log.With("service", "gcs.SummaryStore"),
	}, nil
}

func (s *SummaryStore) Close() error {
	return s.client.Close()
}

func (s *SummaryStore) SaveSummary(ctx context.Context, attemptID string, summary domain.EmotionSummary) (string, error) {
	data, err := json.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("marshal emotion summary: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	key := objectKey(s.prefix, attemptID)
	w := s.client.Bucket(s.bucket).Object(key).
		If(storage.Conditions{DoesNotExist: true}).
		NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write summary to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			return "", domain.ErrSummaryExists
		}
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	s.log.Debug("emotion summary stored", "attempt_id", attemptID, "key", key, "bytes", len(data))
	return objectRef(s.bucket, key), nil
}

func objectKey(prefix, attemptID string) string {
	return path.Join(prefix, attemptID+".json")
}

func objectRef(bucket, key string) string {
	return "gs://" + bucket + "/" + key
}

func isPreconditionFailed(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed
}
