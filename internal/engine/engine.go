// Package engine runs the per-user dialog: it loads the user, routes the input through
// the state machine and renders the replies of the turn.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/m3rciful/vkinder/core/logger"
	"github.com/m3rciful/vkinder/internal/i18n"
	"github.com/m3rciful/vkinder/internal/menu"
	"github.com/m3rciful/vkinder/internal/model"
	"github.com/m3rciful/vkinder/internal/provider"
	"github.com/m3rciful/vkinder/internal/render"
	"github.com/m3rciful/vkinder/internal/response"
	"github.com/m3rciful/vkinder/internal/store"
)

// Inbound is one message from a user.
type Inbound struct {
	UserID int64
	ChatID int64
	// Text is the raw message text.
	Text string
	// Token is set when the input came from a button that carries its token.
	Token     menu.Token
	FirstName string
	LastName  string
	// Lang is the client language code used to pick the reply locale.
	Lang string
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Store    store.Store
	Profiles provider.ProfileProvider
	Auth     provider.AuthProvider
	Finder   Finder
	Bundle   *i18n.Bundle
	Now      func() time.Time
}

// Engine processes turns. Turns of one user run one at a time; different users run in parallel.
type Engine struct {
	manager  *Manager
	store    store.Store
	profiles provider.ProfileProvider
	auth     provider.AuthProvider
	bundle   *i18n.Bundle
	renderer *render.Renderer
	now      func() time.Time
	locks    *userLocks
}

// New wires an engine.
func New(d Deps) (*Engine, error) {
	switch {
	case d.Store == nil:
		return nil, errors.New("engine: store is required")
	case d.Profiles == nil:
		return nil, errors.New("engine: profile provider is required")
	case d.Auth == nil:
		return nil, errors.New("engine: auth provider is required")
	case d.Finder == nil:
		return nil, errors.New("engine: finder is required")
	}
	if d.Bundle == nil {
		d.Bundle = i18n.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Engine{
		manager:  newManager(d.Store, d.Profiles, d.Auth, d.Finder, d.Now),
		store:    d.Store,
		profiles: d.Profiles,
		auth:     d.Auth,
		bundle:   d.Bundle,
		renderer: render.New(d.Bundle, d.Now),
		now:      d.Now,
		locks:    newUserLocks(),
	}, nil
}

// Handle processes in and returns the outbound messages in delivery order.
// It returns an error only when ctx ends before the user's previous turn finished.
func (e *Engine) Handle(ctx context.Context, in Inbound) ([]render.Message, error) {
	unlock, err := e.locks.lock(ctx, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("engine: wait for user %d: %w", in.UserID, err)
	}
	defer unlock()

	start := time.Now()
	replies := e.process(ctx, in)
	msgs := e.renderer.Render(e.bundle.Match(in.Lang), slices.Values(replies))
	logger.Debug(ctx, logger.CompEngine, "turn.done",
		slog.Int("replies", len(replies)),
		slog.Int("messages", len(msgs)),
		slog.Duration("duration", logger.Took(start)),
	)
	return msgs, nil
}

// ActiveTurns reports how many users have a turn running or waiting.
func (e *Engine) ActiveTurns() int {
	return e.locks.len()
}

// process runs one turn and returns its replies. The caller holds the user's lock.
func (e *Engine) process(ctx context.Context, in Inbound) []response.Response {
	t, err := e.load(ctx, in)
	if err != nil {
		logger.Error(ctx, logger.CompEngine, "turn.load", slog.String("status", "fail"), slog.String("err", err.Error()))
		return []response.Response{response.ServiceError()}
	}
	ctx = logger.WithState(ctx, string(t.user.State))

	tok, ok := in.Token, in.Token != ""
	switch {
	case t.user.State == model.StateNewUser:
		e.manager.lookup(t.user.ID, model.StateNewUser).start(e.manager, ctx, t)
	case !ok && i18n.IsStartCommand(in.Text):
		e.manager.Start(ctx, t, model.StateMainMenu)
	default:
		if !ok {
			tok, ok = e.bundle.Normalize(in.Text)
		}
		e.manager.Respond(ctx, t, tok, ok)
	}
	return t.out
}

// load reads or creates the user, renews an expired grant and refreshes the linked profile.
func (e *Engine) load(ctx context.Context, in Inbound) (*turn, error) {
	t := &turn{}
	var (
		rec     model.AuthRecord
		hasAuth bool
	)
	err := store.WithTx(ctx, e.store, func(tx store.Tx) error {
		u, err := tx.GetUser(ctx, in.UserID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			u = model.User{
				ID:      in.UserID,
				State:   model.StateNewUser,
				Profile: model.Profile{FirstName: in.FirstName, LastName: in.LastName},
			}
			if err := tx.SaveUser(ctx, u); err != nil {
				return err
			}
			logger.Info(ctx, logger.CompEngine, "user.created")
		case err != nil:
			return err
		}
		p, err := tx.GetProgress(ctx, in.UserID)
		if err != nil {
			return err
		}
		rec, err = tx.GetAuth(ctx, in.UserID)
		switch {
		case err == nil:
			hasAuth = true
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		t.user, t.progress = u, p
		return nil
	})
	if err != nil {
		return nil, err
	}
	if hasAuth {
		t.token = e.accessToken(ctx, rec)
		if rec.ProfileID != 0 {
			t.user.Profile.ID = rec.ProfileID
		}
	}
	e.refreshProfile(ctx, t)
	return t, nil
}

// accessToken returns a usable token for rec, refreshing it when expired.
// A grant the provider refused to refresh is deleted. Any other failure keeps
// the grant for the next turn. "" means no token is usable now.
func (e *Engine) accessToken(ctx context.Context, rec model.AuthRecord) string {
	if !rec.Expired(e.now()) {
		return rec.AccessToken
	}
	fresh, err := e.auth.Refresh(ctx, rec)
	if err != nil {
		logger.Warn(ctx, logger.CompAuth, "auth.refresh", slog.String("status", "fail"), slog.String("err", err.Error()))
		if !errors.Is(err, provider.ErrRefresh) {
			return ""
		}
		if delErr := store.WithTx(ctx, e.store, func(tx store.Tx) error {
			return tx.DeleteAuth(ctx, rec.UserID)
		}); delErr != nil {
			logger.Error(ctx, logger.CompAuth, "auth.delete", slog.String("status", "fail"), slog.String("err", delErr.Error()))
		}
		return ""
	}
	if fresh.ProfileID == 0 {
		fresh.ProfileID = rec.ProfileID
	}
	if err := store.WithTx(ctx, e.store, func(tx store.Tx) error {
		return tx.SaveAuth(ctx, fresh)
	}); err != nil {
		// The old refresh token may already be spent; the fresh one still works for this turn.
		logger.Error(ctx, logger.CompAuth, "auth.save", slog.String("status", "fail"), slog.String("err", err.Error()))
		return fresh.AccessToken
	}
	logger.Info(ctx, logger.CompAuth, "auth.refresh", slog.String("status", "ok"))
	return fresh.AccessToken
}

// refreshProfile replaces the stored profile snapshot with the provider's current one.
func (e *Engine) refreshProfile(ctx context.Context, t *turn) {
	if t.token == "" || !t.user.Linked() {
		return
	}
	prof, err := e.profiles.GetProfile(ctx, t.user.Profile.ID)
	if err != nil {
		logger.Warn(ctx, logger.CompEngine, "profile.refresh",
			slog.String("status", "fail"),
			slog.Int64("profile_id", t.user.Profile.ID),
			slog.String("err", err.Error()),
		)
		return
	}
	u := t.user
	u.Profile = prof
	if err := store.WithTx(ctx, e.store, func(tx store.Tx) error {
		return tx.SaveUser(ctx, u)
	}); err != nil {
		logger.Warn(ctx, logger.CompEngine, "profile.save", slog.String("status", "fail"), slog.String("err", err.Error()))
		return
	}
	t.user = u
}

// CompleteAuth stores a grant obtained by the authorization callback and links the profile.
func (e *Engine) CompleteAuth(ctx context.Context, rec model.AuthRecord) error {
	unlock, err := e.locks.lock(ctx, rec.UserID)
	if err != nil {
		return fmt.Errorf("engine: wait for user %d: %w", rec.UserID, err)
	}
	defer unlock()

	// The user row goes first: auth_data references users.
	err = store.WithTx(ctx, e.store, func(tx store.Tx) error {
		u, err := tx.GetUser(ctx, rec.UserID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			u = model.User{ID: rec.UserID, State: model.StateNewUser}
		case err != nil:
			return err
		}
		u.Profile.ID = rec.ProfileID
		if err := tx.SaveUser(ctx, u); err != nil {
			return err
		}
		return tx.SaveAuth(ctx, rec)
	})
	if err != nil {
		return fmt.Errorf("engine: complete auth: %w", err)
	}
	logger.Info(ctx, logger.CompAuth, "auth.complete",
		slog.String("status", "ok"),
		slog.Int64("profile_id", rec.ProfileID),
	)
	return nil
}
