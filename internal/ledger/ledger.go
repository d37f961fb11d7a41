package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Behyna/dcb-renewal-service/internal/model"
	"github.com/redis/go-redis/v9"
)

const (
	LedgerKey      = "renewal_status_report"
	fallbackPrefix = "notification:fallback:"
)

var ErrLedgerEmpty = errors.New("LEDGER_EMPTY")
var ErrFallbackNotFound = errors.New("FALLBACK_NOT_FOUND")

// Ledger is the FIFO list of serialized charge outcomes. Workers append to
// the tail; the result consumer pops from the head. Entries carry no TTL.
type Ledger interface {
	PushTail(ctx context.Context, entries ...string) error
	PopHead(ctx context.Context) (string, error)
	Len(ctx context.Context) (int64, error)
}

// FallbackStore is the KV space parking notifications the broker refused.
type FallbackStore interface {
	Set(ctx context.Context, msg model.FallbackMessage) error
	Get(ctx context.Context, id string) (*model.FallbackMessage, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]model.FallbackMessage, error)
}

type Store struct {
	rdb    *redis.Client
	prefix string
}

func NewStore(rdb *redis.Client, keyPrefix string) *Store {
	return &Store{rdb: rdb, prefix: keyPrefix}
}

func (s *Store) ledgerKey() string { return s.prefix + LedgerKey }

func (s *Store) fallbackKey(id string) string { return s.prefix + fallbackPrefix + id }

func (s *Store) PushTail(ctx context.Context, entries ...string) error {
	if len(entries) == 0 {
		return nil
	}

	values := make([]interface{}, len(entries))
	for i, e := range entries {
		values[i] = e
	}

	if err := s.rdb.RPush(ctx, s.ledgerKey(), values...).Err(); err != nil {
		return fmt.Errorf("failed to push to ledger: %w", err)
	}

	return nil
}

func (s *Store) PopHead(ctx context.Context) (string, error) {
	entry, err := s.rdb.LPop(ctx, s.ledgerKey()).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrLedgerEmpty
	}
	if err != nil {
		return "", fmt.Errorf("failed to pop from ledger: %w", err)
	}

	return entry, nil
}

func (s *Store) Len(ctx context.Context) (int64, error) {
	return s.rdb.LLen(ctx, s.ledgerKey()).Result()
}

func (s *Store) Set(ctx context.Context, msg model.FallbackMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode fallback message: %w", err)
	}

	if err := s.rdb.Set(ctx, s.fallbackKey(msg.ID), body, 0).Err(); err != nil {
		return fmt.Errorf("failed to store fallback message: %w", err)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*model.FallbackMessage, error) {
	body, err := s.rdb.Get(ctx, s.fallbackKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrFallbackNotFound
	}
	if err != nil {
		return nil, err
	}

	var msg model.FallbackMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode fallback message: %w", err)
	}

	return &msg, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, s.fallbackKey(id)).Err()
}

// List scans every fallback key and returns the decoded messages. Entries
// that fail to decode are skipped; the sweep must not stall on one bad value.
func (s *Store) List(ctx context.Context) ([]model.FallbackMessage, error) {
	var messages []model.FallbackMessage

	iter := s.rdb.Scan(ctx, 0, s.prefix+fallbackPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		body, err := s.rdb.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}

		var msg model.FallbackMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			continue
		}

		messages = append(messages, msg)
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan fallback keys: %w", err)
	}

	return messages, nil
}
