// Package redis implements store.Repository on Redis using go-redis.
//
// Layout (all keys share the configured prefix):
//
//	<prefix>resident:<key>  JSON encoded store.Resident
//	<prefix>vacancies       set of unit ids
//	<prefix>tickets         list of JSON encoded store.Ticket
//	<prefix>visits          list of JSON encoded store.Visit
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hupe1980/concierge/store"
	goredis "github.com/redis/go-redis/v9"
)

// Options configure the Redis repository.
type Options struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Store is a Redis backed repository.
type Store struct {
	client    *goredis.Client
	keyPrefix string
}

// New connects to Redis and verifies the connection.
func New(optFns ...func(o *Options)) (*Store, error) {
	opts := Options{Addr: "localhost:6379", KeyPrefix: "concierge:"}
	for _, fn := range optFns {
		fn(&opts)
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewFromClient(client, opts.KeyPrefix), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *goredis.Client, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = "concierge:"
	}
	return &Store{client: client, keyPrefix: keyPrefix}
}

func (s *Store) residentKey(name, unit string) string {
	return s.keyPrefix + "resident:" + store.ResidentKey(name, unit)
}

func (s *Store) vacanciesKey() string { return s.keyPrefix + "vacancies" }
func (s *Store) ticketsKey() string   { return s.keyPrefix + "tickets" }
func (s *Store) visitsKey() string    { return s.keyPrefix + "visits" }

func (s *Store) LookupResident(ctx context.Context, name, unit string) (*store.Resident, error) {
	raw, err := s.client.Get(ctx, s.residentKey(name, unit)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrResidentNotFound(name, unit)
	}
	if err != nil {
		return nil, fmt.Errorf("get resident: %w", err)
	}
	var r store.Resident
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode resident: %w", err)
	}
	if !r.Active {
		return nil, store.ErrResidentNotFound(name, unit)
	}
	return &r, nil
}

func (s *Store) ListVacancies(ctx context.Context) ([]string, error) {
	units, err := s.client.SMembers(ctx, s.vacanciesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list vacancies: %w", err)
	}
	sort.Strings(units)
	return units, nil
}

func (s *Store) AppendTicket(ctx context.Context, t store.Ticket) (store.Ticket, error) {
	t = t.Prepare()
	data, err := json.Marshal(t)
	if err != nil {
		return store.Ticket{}, fmt.Errorf("encode ticket: %w", err)
	}
	if err := s.client.RPush(ctx, s.ticketsKey(), data).Err(); err != nil {
		return store.Ticket{}, fmt.Errorf("append ticket: %w", err)
	}
	return t, nil
}

func (s *Store) ListTickets(ctx context.Context) ([]store.Ticket, error) {
	raw, err := s.client.LRange(ctx, s.ticketsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	out := make([]store.Ticket, 0, len(raw))
	for _, item := range raw {
		var t store.Ticket
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("decode ticket: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) RecordVisit(ctx context.Context, v store.Visit) (store.Visit, error) {
	v = v.Prepare()
	data, err := json.Marshal(v)
	if err != nil {
		return store.Visit{}, fmt.Errorf("encode visit: %w", err)
	}
	if err := s.client.RPush(ctx, s.visitsKey(), data).Err(); err != nil {
		return store.Visit{}, fmt.Errorf("record visit: %w", err)
	}
	return v, nil
}

func (s *Store) ListVisits(ctx context.Context) ([]store.Visit, error) {
	raw, err := s.client.LRange(ctx, s.visitsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	out := make([]store.Visit, 0, len(raw))
	for _, item := range raw {
		var v store.Visit
		if err := json.Unmarshal([]byte(item), &v); err != nil {
			return nil, fmt.Errorf("decode visit: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Store) Seed(ctx context.Context, residents []store.Resident, vacancies []string) error {
	pipe := s.client.TxPipeline()
	for _, r := range residents {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode resident: %w", err)
		}
		pipe.Set(ctx, s.residentKey(r.Name, r.Unit), data, 0)
	}
	if len(vacancies) > 0 {
		members := make([]any, len(vacancies))
		for i, u := range vacancies {
			members[i] = u
		}
		pipe.SAdd(ctx, s.vacanciesKey(), members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	return nil
}

// Ping checks if the store is healthy.
func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *Store) Close() error { return s.client.Close() }

var _ store.Repository = (*Store)(nil)
