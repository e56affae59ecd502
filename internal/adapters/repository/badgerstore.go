package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/okian/twitch-sources/internal/domain/eventsub"
	"github.com/okian/twitch-sources/pkg/logger"
)

// Key layout:
//
//	sub/ext/{external_id}                 -> JSON subscription
//	sub/own/{owner}/{type}/{external_id}  -> index entry, empty value
//	user/{id}                             -> JSON user
const (
	subPrefix   = "sub/ext/"
	ownerPrefix = "sub/own/"
	userPrefix  = "user/"

	dirPermission = 0o750
	memTableSize  = 16 << 20
)

func subKey(externalID string) []byte { return []byte(subPrefix + externalID) }

func ownerKey(owner string, t eventsub.SubType, externalID string) []byte {
	return []byte(ownerPrefix + owner + "/" + string(t) + "/" + externalID)
}

func ownerTypePrefix(owner string, t eventsub.SubType) []byte {
	return []byte(ownerPrefix + owner + "/" + string(t) + "/")
}

func userKey(id string) []byte { return []byte(userPrefix + id) }

// BadgerStore implements Registry and UserStore on an embedded badger DB.
type BadgerStore struct {
	db       *badger.DB
	dir      string
	inMemory bool
	closed   atomic.Bool
	logger   logger.Logger
}

var (
	_ Registry  = (*BadgerStore)(nil)
	_ UserStore = (*BadgerStore)(nil)
)

// NewBadgerStore opens (or creates) the database.
func NewBadgerStore(opts ...Option) (*BadgerStore, error) {
	s := &BadgerStore{
		dir:    "./data",
		logger: logger.Named("repository"),
	}
	for _, opt := range opts {
		opt(s)
	}

	var bopts badger.Options
	if s.inMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(s.dir, dirPermission); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		bopts = badger.DefaultOptions(s.dir)
	}
	bopts = bopts.
		WithLogger(&badgerLogger{l: s.logger.Named("badger")}).
		WithMemTableSize(memTableSize)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	s.db = db
	return s, nil
}

// Close flushes and closes the database.
func (s *BadgerStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *BadgerStore) check(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

func mapErr(err error, key string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	case errors.Is(err, badger.ErrConflict):
		return fmt.Errorf("%w: %s", ErrConflict, key)
	default:
		return err
	}
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, b)
}

// FindByExternalID returns the subscription or ErrNotFound.
func (s *BadgerStore) FindByExternalID(ctx context.Context, externalID string) (eventsub.Subscription, error) {
	if err := s.check(ctx); err != nil {
		return eventsub.Subscription{}, err
	}
	var sub eventsub.Subscription
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, subKey(externalID), &sub)
	})
	if err != nil {
		return eventsub.Subscription{}, mapErr(err, externalID)
	}
	return sub, nil
}

// FindByOwner returns the owner's subscriptions of the given types.
func (s *BadgerStore) FindByOwner(ctx context.Context, owner string, types []eventsub.SubType) ([]eventsub.Subscription, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var out []eventsub.Subscription
	err := s.db.View(func(txn *badger.Txn) error {
		iopts := badger.DefaultIteratorOptions
		iopts.PrefetchValues = false
		for _, t := range types {
			prefix := ownerTypePrefix(owner, t)
			var ids []string
			it := txn.NewIterator(iopts)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), string(prefix)))
			}
			it.Close()

			for _, id := range ids {
				var sub eventsub.Subscription
				if err := getJSON(txn, subKey(id), &sub); err != nil {
					if errors.Is(err, badger.ErrKeyNotFound) {
						continue
					}
					return err
				}
				out = append(out, sub)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InsertBatch persists all records atomically.
func (s *BadgerStore) InsertBatch(ctx context.Context, subs []eventsub.Subscription) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}
	for _, sub := range subs {
		if sub.ExternalID == "" || !sub.Type.Valid() {
			return fmt.Errorf("%w: external id %q type %q", ErrInvalid, sub.ExternalID, sub.Type)
		}
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, sub := range subs {
			if _, err := txn.Get(subKey(sub.ExternalID)); err == nil {
				return fmt.Errorf("%w: %s", ErrConflict, sub.ExternalID)
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := setJSON(txn, subKey(sub.ExternalID), sub); err != nil {
				return err
			}
			if err := txn.Set(ownerKey(sub.Owner, sub.Type, sub.ExternalID), nil); err != nil {
				return err
			}
		}
		return nil
	})
	return mapErr(err, "batch")
}

// DeleteByExternalID removes the record and its owner index entry.
func (s *BadgerStore) DeleteByExternalID(ctx context.Context, externalID string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		var sub eventsub.Subscription
		if err := getJSON(txn, subKey(externalID), &sub); err != nil {
			return err
		}
		if err := txn.Delete(subKey(externalID)); err != nil {
			return err
		}
		return txn.Delete(ownerKey(sub.Owner, sub.Type, externalID))
	})
	return mapErr(err, externalID)
}

func (s *BadgerStore) touch(ctx context.Context, externalID string, apply func(*eventsub.Subscription)) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		var sub eventsub.Subscription
		if err := getJSON(txn, subKey(externalID), &sub); err != nil {
			return err
		}
		apply(&sub)
		return setJSON(txn, subKey(externalID), sub)
	})
	return mapErr(err, externalID)
}

// TouchConnect stamps the last connect time.
func (s *BadgerStore) TouchConnect(ctx context.Context, externalID string, at time.Time) error {
	return s.touch(ctx, externalID, func(sub *eventsub.Subscription) { sub.LastConnectAt = at.UTC() })
}

// TouchDisconnect stamps the last disconnect time.
func (s *BadgerStore) TouchDisconnect(ctx context.Context, externalID string, at time.Time) error {
	return s.touch(ctx, externalID, func(sub *eventsub.Subscription) { sub.LastDisconnectAt = at.UTC() })
}

// Count returns the number of stored subscriptions.
func (s *BadgerStore) Count(ctx context.Context) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		iopts := badger.DefaultIteratorOptions
		iopts.PrefetchValues = false
		it := txn.NewIterator(iopts)
		defer it.Close()
		prefix := []byte(subPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// GetUser returns the user or ErrNotFound.
func (s *BadgerStore) GetUser(ctx context.Context, id string) (eventsub.User, error) {
	if err := s.check(ctx); err != nil {
		return eventsub.User{}, err
	}
	var u eventsub.User
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, userKey(id), &u)
	})
	if err != nil {
		return eventsub.User{}, mapErr(err, id)
	}
	return u, nil
}

// SaveUser inserts or replaces a user.
func (s *BadgerStore) SaveUser(ctx context.Context, u eventsub.User) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if u.ID == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalid)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, userKey(u.ID), u)
	})
}

// DeleteUser removes a user or returns ErrNotFound.
func (s *BadgerStore) DeleteUser(ctx context.Context, id string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(userKey(id)); err != nil {
			return err
		}
		return txn.Delete(userKey(id))
	})
	return mapErr(err, id)
}
