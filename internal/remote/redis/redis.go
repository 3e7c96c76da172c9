// Package redis stores the shared document as a Redis hash and announces
// every write on a pub/sub channel.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"gastos/internal/core"
	"gastos/internal/remote"
)

const (
	fieldData      = "data"
	fieldUpdatedAt = "ultimaActualizacion"
	fieldVersion   = "version"
)

// putScript writes the document and publishes the change atomically. The
// timestamp comes from the server clock so every client agrees on it.
var putScript = goredis.NewScript(`
redis.replicate_commands()
local t = redis.call('TIME')
local ms = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
redis.call('HSET', KEYS[1], 'data', ARGV[1], 'ultimaActualizacion', ms, 'version', ARGV[2])
redis.call('PUBLISH', KEYS[2], ms)
return ms
`)

type Options struct {
	Addr       string
	Password   string
	DB         int
	Collection string
	Document   string
}

type Store struct {
	client  goredis.UniversalClient
	key     string
	channel string
	logger  *slog.Logger
}

var _ remote.DocumentStore = (*Store)(nil)

func New(opts Options) *Store {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewWithClient(client, opts.Collection, opts.Document)
}

// NewWithClient uses an existing client; the hash key is
// "<collection>:<document>".
func NewWithClient(client goredis.UniversalClient, collection, document string) *Store {
	key := documentKey(collection, document)
	return &Store{
		client:  client,
		key:     key,
		channel: key + ":changes",
		logger:  slog.Default().With("component", "remote", "backend", "redis", "key", key),
	}
}

func documentKey(collection, document string) string {
	return collection + ":" + document
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", mapErr(err))
	}
	return nil
}

func (s *Store) Get(ctx context.Context) (remote.Document, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return remote.Document{}, fmt.Errorf("redis get %s: %w", s.key, mapErr(err))
	}
	if len(fields) == 0 {
		return remote.Document{}, remote.ErrDocumentNotFound
	}
	return decodeFields(fields)
}

func (s *Store) Put(ctx context.Context, c core.Collection) (remote.Document, error) {
	c = c.Clone()
	c.Normalize()
	data, err := json.Marshal(c)
	if err != nil {
		return remote.Document{}, fmt.Errorf("encode collection: %w", err)
	}
	ms, err := putScript.Run(ctx, s.client, []string{s.key, s.channel}, string(data), remote.SchemaVersion).Int64()
	if err != nil {
		return remote.Document{}, fmt.Errorf("redis put %s: %w", s.key, mapErr(err))
	}
	return remote.Document{
		Collection: c,
		UpdatedAt:  time.UnixMilli(ms).UTC(),
		Version:    remote.SchemaVersion,
	}, nil
}

// Watch subscribes to the change channel and calls fn with the current
// document and again after every announced write. An unexpected end of the
// subscription is reported once as ErrUnavailable.
func (s *Store) Watch(ctx context.Context, fn func(remote.Document, error)) (remote.Subscription, error) {
	pubsub := s.client.Subscribe(ctx, s.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", s.channel, mapErr(err))
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.deliver(watchCtx, fn)
		ch := pubsub.Channel()
		for {
			select {
			case <-watchCtx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					if watchCtx.Err() == nil {
						fn(remote.Document{}, fmt.Errorf("%w: redis subscription closed", remote.ErrUnavailable))
					}
					return
				}
				s.deliver(watchCtx, fn)
			}
		}
	}()

	return remote.SubscriptionFunc(func() error {
		cancel()
		err := pubsub.Close()
		<-done
		return err
	}), nil
}

func (s *Store) deliver(ctx context.Context, fn func(remote.Document, error)) {
	doc, err := s.Get(ctx)
	if errors.Is(err, remote.ErrDocumentNotFound) {
		return
	}
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.logger.Warn("Failed to read document after change", "error", err)
	}
	fn(doc, err)
}

func (s *Store) Close() error {
	return s.client.Close()
}

func decodeFields(fields map[string]string) (remote.Document, error) {
	c, err := core.DecodeCollection([]byte(fields[fieldData]))
	if err != nil {
		return remote.Document{}, fmt.Errorf("decode document: %w", err)
	}
	doc := remote.Document{Collection: c, Version: fields[fieldVersion]}
	if raw := fields[fieldUpdatedAt]; raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return remote.Document{}, fmt.Errorf("decode document timestamp %q: %w", raw, err)
		}
		doc.UpdatedAt = time.UnixMilli(ms).UTC()
	}
	return doc, nil
}

// mapErr turns ACL and auth refusals into remote.ErrPermissionDenied.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	for _, prefix := range []string{"NOPERM", "NOAUTH", "WRONGPASS"} {
		if strings.HasPrefix(msg, prefix) {
			return fmt.Errorf("%w: %w", remote.ErrPermissionDenied, err)
		}
	}
	return err
}
