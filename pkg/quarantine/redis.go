package quarantine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key layout. The record itself lives in a hash, the transition
// log in a list, so history appends never rewrite prior entries.
const (
	redisRecordPrefix  = "ragshield:quarantine:record:"
	redisHistoryPrefix = "ragshield:quarantine:history:"
	redisLeasePrefix   = "ragshield:quarantine:lease:"
	redisPurgedSet     = "ragshield:quarantine:purged"
)

// RedisStore is the shared RecordStore for multi-instance deployments.
// The lease is a plain SETNX with TTL: expiry bounds how long a crashed
// coordinator can block remediation of a document.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Ping verifies connectivity at startup.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Save(ctx context.Context, rec *Record) error {
	fields := map[string]interface{}{
		"document_id":  rec.DocumentID,
		"verdict_id":   rec.VerdictID,
		"content_hash": rec.ContentHash,
		"state":        string(rec.State),
		"created_at":   rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":   rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if err := s.client.HSet(ctx, redisRecordPrefix+rec.DocumentID, fields).Err(); err != nil {
		return fmt.Errorf("save quarantine record %s: %w", rec.DocumentID, err)
	}

	histKey := redisHistoryPrefix + rec.DocumentID
	stored, err := s.client.LLen(ctx, histKey).Result()
	if err != nil {
		return fmt.Errorf("read history length for %s: %w", rec.DocumentID, err)
	}
	for _, tr := range rec.History[stored:] {
		raw, err := json.Marshal(tr)
		if err != nil {
			return fmt.Errorf("encode transition for %s: %w", rec.DocumentID, err)
		}
		if err := s.client.RPush(ctx, histKey, raw).Err(); err != nil {
			return fmt.Errorf("append transition for %s: %w", rec.DocumentID, err)
		}
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, documentID string) (*Record, error) {
	fields, err := s.client.HGetAll(ctx, redisRecordPrefix+documentID).Result()
	if err != nil {
		return nil, fmt.Errorf("load quarantine record %s: %w", documentID, err)
	}
	if len(fields) == 0 {
		return nil, &RecordNotFoundError{DocumentID: documentID}
	}

	rec := &Record{
		DocumentID:  fields["document_id"],
		VerdictID:   fields["verdict_id"],
		ContentHash: fields["content_hash"],
		State:       State(fields["state"]),
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["created_at"]); err != nil {
		return nil, fmt.Errorf("decode created_at for %s: %w", documentID, err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, fields["updated_at"]); err != nil {
		return nil, fmt.Errorf("decode updated_at for %s: %w", documentID, err)
	}

	raws, err := s.client.LRange(ctx, redisHistoryPrefix+documentID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", documentID, err)
	}
	for _, raw := range raws {
		var tr Transition
		if err := json.Unmarshal([]byte(raw), &tr); err != nil {
			return nil, fmt.Errorf("decode transition for %s: %w", documentID, err)
		}
		rec.History = append(rec.History, tr)
	}
	return rec, nil
}

func (s *RedisStore) List(ctx context.Context) ([]*Record, error) {
	var out []*Record
	iter := s.client.Scan(ctx, 0, redisRecordPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		id := iter.Val()[len(redisRecordPrefix):]
		rec, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan quarantine records: %w", err)
	}
	return out, nil
}

func (s *RedisStore) AcquireLease(ctx context.Context, documentID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, redisLeasePrefix+documentID, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease for %s: %w", documentID, err)
	}
	return ok, nil
}

func (s *RedisStore) ReleaseLease(ctx context.Context, documentID string) error {
	if err := s.client.Del(ctx, redisLeasePrefix+documentID).Err(); err != nil {
		return fmt.Errorf("release lease for %s: %w", documentID, err)
	}
	return nil
}

func (s *RedisStore) MarkPurged(ctx context.Context, contentHash string) error {
	if err := s.client.SAdd(ctx, redisPurgedSet, contentHash).Err(); err != nil {
		return fmt.Errorf("record purged hash: %w", err)
	}
	return nil
}

func (s *RedisStore) IsPurged(ctx context.Context, contentHash string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, redisPurgedSet, contentHash).Result()
	if err != nil {
		return false, fmt.Errorf("check purged hash: %w", err)
	}
	return ok, nil
}
