// Package memory is an in-process Store used by tests and single-instance deployments.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/m3rciful/vkinder/internal/model"
	"github.com/m3rciful/vkinder/internal/store"
)

var errTxDone = errors.New("memory: transaction already finished")

type listKey struct {
	kind   model.ListKind
	userID int64
}

type data struct {
	users    map[int64]model.User
	progress map[int64]model.Progress
	auth     map[int64]model.AuthRecord
	lists    map[listKey][]model.ListEntry
}

func (d data) clone() data {
	out := data{
		users:    maps.Clone(d.users),
		progress: maps.Clone(d.progress),
		auth:     maps.Clone(d.auth),
		lists:    make(map[listKey][]model.ListEntry, len(d.lists)),
	}
	for k, v := range d.lists {
		out.lists[k] = slices.Clone(v)
	}
	return out
}

// Store keeps all data in maps. Transactions are serialized.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data data
	now  func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		data: data{
			users:    map[int64]model.User{},
			progress: map[int64]model.Progress{},
			auth:     map[int64]model.AuthRecord{},
			lists:    map[listKey][]model.ListEntry{},
		},
		now: time.Now,
	}
}

// Begin starts a transaction working on a private copy of the data.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.txMu.Lock()
	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()
	return &tx{s: s, data: snapshot}, nil
}

// Entries returns a copy of the list for assertions in tests.
func (s *Store) Entries(kind model.ListKind, userID int64) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int64
	for _, e := range s.data.lists[listKey{kind, userID}] {
		ids = append(ids, e.ProfileID)
	}
	return ids
}

type tx struct {
	s    *Store
	data data
	done bool
}

func (t *tx) finish(apply bool) error {
	if t.done {
		return errTxDone
	}
	t.done = true
	if apply {
		t.s.mu.Lock()
		t.s.data = t.data
		t.s.mu.Unlock()
	}
	t.s.txMu.Unlock()
	return nil
}

func (t *tx) Commit() error   { return t.finish(true) }
func (t *tx) Rollback() error { return t.finish(false) }

func (t *tx) check(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	return ctx.Err()
}

func (t *tx) GetUser(ctx context.Context, id int64) (model.User, error) {
	if err := t.check(ctx); err != nil {
		return model.User{}, err
	}
	u, ok := t.data.users[id]
	if !ok {
		return model.User{}, store.ErrNotFound
	}
	return u, nil
}

func (t *tx) SaveUser(ctx context.Context, u model.User) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	t.data.users[u.ID] = u
	return nil
}

func (t *tx) GetProgress(ctx context.Context, userID int64) (model.Progress, error) {
	if err := t.check(ctx); err != nil {
		return model.Progress{}, err
	}
	if p, ok := t.data.progress[userID]; ok {
		return p, nil
	}
	return model.NewProgress(userID), nil
}

func (t *tx) SaveProgress(ctx context.Context, p model.Progress) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	t.data.progress[p.UserID] = p
	return nil
}

func (t *tx) GetAuth(ctx context.Context, userID int64) (model.AuthRecord, error) {
	if err := t.check(ctx); err != nil {
		return model.AuthRecord{}, err
	}
	rec, ok := t.data.auth[userID]
	if !ok {
		return model.AuthRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (t *tx) SaveAuth(ctx context.Context, rec model.AuthRecord) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	if _, ok := t.data.users[rec.UserID]; !ok {
		return fmt.Errorf("memory: save auth %d: %w", rec.UserID, store.ErrUnknownUser)
	}
	t.data.auth[rec.UserID] = rec
	return nil
}

func (t *tx) DeleteAuth(ctx context.Context, userID int64) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	delete(t.data.auth, userID)
	return nil
}

func (t *tx) AddEntry(ctx context.Context, kind model.ListKind, userID, profileID int64) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	key := listKey{kind, userID}
	entries := t.data.lists[key]
	if slices.ContainsFunc(entries, func(e model.ListEntry) bool { return e.ProfileID == profileID }) {
		return nil
	}
	t.data.lists[key] = append(entries, model.ListEntry{UserID: userID, ProfileID: profileID, CreatedAt: t.s.now()})
	return nil
}

func (t *tx) DeleteEntry(ctx context.Context, kind model.ListKind, userID, profileID int64) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	key := listKey{kind, userID}
	t.data.lists[key] = slices.DeleteFunc(t.data.lists[key], func(e model.ListEntry) bool {
		return e.ProfileID == profileID
	})
	return nil
}

func (t *tx) CountEntries(ctx context.Context, kind model.ListKind, userID int64) (int, error) {
	if err := t.check(ctx); err != nil {
		return 0, err
	}
	return len(t.data.lists[listKey{kind, userID}]), nil
}

func (t *tx) EntryAt(ctx context.Context, kind model.ListKind, userID int64, index int) (model.ListEntry, error) {
	if err := t.check(ctx); err != nil {
		return model.ListEntry{}, err
	}
	entries := t.data.lists[listKey{kind, userID}]
	if index < 0 || index >= len(entries) {
		return model.ListEntry{}, fmt.Errorf("memory: %s entry %d: %w", kind, index, store.ErrNotFound)
	}
	return entries[index], nil
}

func (t *tx) EntryIDs(ctx context.Context, kind model.ListKind, userID int64) ([]int64, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	entries := t.data.lists[listKey{kind, userID}]
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ProfileID)
	}
	return ids, nil
}
