// Package store declares the persistence contract of the bot.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/m3rciful/vkinder/internal/model"
)

// ErrNotFound is returned by lookups that found no row.
var ErrNotFound = errors.New("store: not found")

// ErrUnknownUser is returned by writes that reference a user row that does not exist.
var ErrUnknownUser = errors.New("store: unknown user")

// Store opens transactions.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a unit of work. Reads see the writes made earlier in the same Tx.
type Tx interface {
	Commit() error
	Rollback() error

	// GetUser returns ErrNotFound for an unknown id.
	GetUser(ctx context.Context, id int64) (model.User, error)
	// SaveUser inserts or replaces the user.
	SaveUser(ctx context.Context, u model.User) error

	// GetProgress returns the stored progress or the defaults from model.NewProgress.
	GetProgress(ctx context.Context, userID int64) (model.Progress, error)
	SaveProgress(ctx context.Context, p model.Progress) error

	// GetAuth returns ErrNotFound when the user never authorized.
	GetAuth(ctx context.Context, userID int64) (model.AuthRecord, error)
	// SaveAuth returns ErrUnknownUser until the user has been saved.
	SaveAuth(ctx context.Context, rec model.AuthRecord) error
	DeleteAuth(ctx context.Context, userID int64) error

	// AddEntry is idempotent.
	AddEntry(ctx context.Context, kind model.ListKind, userID, profileID int64) error
	DeleteEntry(ctx context.Context, kind model.ListKind, userID, profileID int64) error
	CountEntries(ctx context.Context, kind model.ListKind, userID int64) (int, error)
	// EntryAt returns the entry at a 0-based position in insertion order.
	EntryAt(ctx context.Context, kind model.ListKind, userID int64, index int) (model.ListEntry, error)
	// EntryIDs returns the profile ids of all entries in kind.
	EntryIDs(ctx context.Context, kind model.ListKind, userID int64) ([]int64, error)
}

// WithTx runs fn inside a transaction, committing on success and rolling back otherwise.
func WithTx(ctx context.Context, s Store, fn func(Tx) error) (err error) {
	tx, err := s.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("store: rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// Classify moves profileID into kind: it is removed from the other list first.
func Classify(ctx context.Context, tx Tx, kind model.ListKind, userID, profileID int64) error {
	if err := tx.DeleteEntry(ctx, kind.Other(), userID, profileID); err != nil {
		return err
	}
	return tx.AddEntry(ctx, kind, userID, profileID)
}
