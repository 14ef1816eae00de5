// Package redisstore keeps each board document under its own key in a Redis
// key-value namespace.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/idilsaglam/board/internal/model"
	"github.com/idilsaglam/board/internal/store"
)

// Config holds connection settings.
type Config struct {
	Address  string
	Password string
	Database int
	Prefix   string
}

type Store struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// Open connects and pings the server.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.Database,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, store.Unavailable("ping redis", err)
	}
	return New(client, cfg.Prefix, logger), nil
}

// New wraps an existing client.
func New(client *redis.Client, prefix string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, prefix: prefix, logger: logger.Named("redisstore")}
}

func (s *Store) key(id string) string { return s.prefix + id }

func (s *Store) Load(ctx context.Context, id string) (model.Document, bool, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Document{}, false, nil
		}
		return model.Document{}, false, store.Unavailable("get", err)
	}
	doc, err := store.Decode(raw)
	if err != nil {
		s.logger.Warn("corrupt record", zap.String("key", s.key(id)), zap.Error(err))
		return model.Document{}, true, fmt.Errorf("board %s: %w", id, err)
	}
	return doc, true, nil
}

// Save uses SET XX so a write never creates a record that Ensure did not.
func (s *Store) Save(ctx context.Context, id string, doc model.Document) error {
	b, err := model.EncodeSections(doc.Sections)
	if err != nil {
		return err
	}
	ok, err := s.client.SetXX(ctx, s.key(id), b, 0).Result()
	if err != nil {
		return store.Unavailable("set", err)
	}
	if !ok {
		s.logger.Warn("write rejected, no record", zap.String("key", s.key(id)))
		return fmt.Errorf("%w: no board %q", store.ErrWriteRejected, id)
	}
	return nil
}

func (s *Store) Ensure(ctx context.Context, id string) error {
	if err := store.CheckID(id); err != nil {
		return err
	}
	created, err := s.client.SetNX(ctx, s.key(id), "[]", 0).Result()
	if err != nil {
		return store.Unavailable("setnx", err)
	}
	if created {
		s.logger.Info("created board", zap.String("key", s.key(id)))
	}
	return nil
}

func (s *Store) Close() error { return s.client.Close() }
