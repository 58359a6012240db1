package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/m3rciful/vkinder/core/logger"
	"github.com/m3rciful/vkinder/internal/menu"
	"github.com/m3rciful/vkinder/internal/model"
	"github.com/m3rciful/vkinder/internal/provider"
	"github.com/m3rciful/vkinder/internal/response"
	"github.com/m3rciful/vkinder/internal/search"
	"github.com/m3rciful/vkinder/internal/store"
)

// photoLimit is the number of most liked photos attached to a profile card.
const photoLimit = 3

// Finder picks one candidate for a search request.
type Finder interface {
	Find(ctx context.Context, req search.Request) (model.Profile, error)
}

// turn is the mutable context of one inbound message.
type turn struct {
	user     model.User
	progress model.Progress
	// token is the user's access token; empty when the user must authorize.
	token string
	out   []response.Response
}

func (t *turn) emit(rs ...response.Response) {
	t.out = append(t.out, rs...)
}

type (
	startFunc   func(m *Manager, ctx context.Context, t *turn)
	respondFunc func(m *Manager, ctx context.Context, t *turn, tok menu.Token)
)

// state binds a dialog state to its keyboard and handlers. The keyboard tokens are
// exactly the tokens the state accepts; a state without a keyboard accepts any input.
type state struct {
	layout  menu.Keyboard
	start   startFunc
	respond respondFunc
}

func (s state) accepts(tok menu.Token) bool {
	return len(s.layout.Rows) == 0 || slices.Contains(s.layout.Tokens(), tok)
}

// Manager runs the per-user state machine. It is not safe for concurrent turns of one user.
type Manager struct {
	store    store.Store
	profiles provider.ProfileProvider
	auth     provider.AuthProvider
	finder   Finder
	now      func() time.Time
	states   map[model.UserState]state
}

func newManager(st store.Store, profiles provider.ProfileProvider, auth provider.AuthProvider, finder Finder, now func() time.Time) *Manager {
	m := &Manager{store: st, profiles: profiles, auth: auth, finder: finder, now: now}
	m.states = map[model.UserState]state{
		model.StateNewUser: {
			start:   (*Manager).startNewUser,
			respond: func(m *Manager, ctx context.Context, t *turn, _ menu.Token) { m.startNewUser(ctx, t) },
		},
		model.StateMainMenu: {
			layout:  mainMenuLayout,
			start:   (*Manager).startMainMenu,
			respond: (*Manager).respondMainMenu,
		},
		model.StateSearching: {
			layout:  searchingLayout,
			start:   (*Manager).startSearching,
			respond: (*Manager).respondSearching,
		},
		model.StateFavoriteList: {
			layout:  favoriteLayout,
			start:   listStart(model.Favorites),
			respond: listRespond(model.Favorites),
		},
		model.StateBlacklist: {
			layout:  blacklistLayout,
			start:   listStart(model.Blacklist),
			respond: listRespond(model.Blacklist),
		},
		model.StateAuth: {
			layout:  authLayout,
			start:   (*Manager).startAuth,
			respond: (*Manager).respondAuth,
		},
	}
	return m
}

// lookup returns the handlers of st. An unknown state means corrupted data and panics.
func (m *Manager) lookup(userID int64, st model.UserState) state {
	s, ok := m.states[st]
	if !ok {
		panic(fmt.Sprintf("engine: user %d is in unknown state %q", userID, st))
	}
	return s
}

// Tokens returns the tokens accepted in st.
func (m *Manager) Tokens(st model.UserState) []menu.Token {
	return m.lookup(0, st).layout.Tokens()
}

// resumable reports whether st can be returned to after a detour.
func resumable(st model.UserState) bool {
	return st.Valid() && st != model.StateAuth && st != model.StateNewUser
}

// Start persists next as the user's state, remembering the previous one, and runs its entry handler.
func (m *Manager) Start(ctx context.Context, t *turn, next model.UserState) {
	s := m.lookup(t.user.ID, next)
	prev := t.user.State

	u, p := t.user, t.progress
	u.State = next
	if prev != next && resumable(prev) {
		p.LastState = prev
	}
	err := store.WithTx(ctx, m.store, func(tx store.Tx) error {
		if err := tx.SaveUser(ctx, u); err != nil {
			return err
		}
		return tx.SaveProgress(ctx, p)
	})
	if err != nil {
		logger.Error(ctx, logger.CompEngine, "state.transition",
			slog.String("status", "fail"),
			slog.String("next_state", string(next)),
			slog.String("err", err.Error()),
		)
		t.emit(response.ServiceError())
		return
	}
	t.user, t.progress = u, p
	ctx = logger.WithState(ctx, string(next))
	logger.Debug(ctx, logger.CompEngine, "state.transition",
		slog.String("status", "ok"),
		slog.String("prev_state", string(prev)),
	)
	s.start(m, ctx, t)
}

// Respond routes tok to the current state. ok is false when the input matched no token.
func (m *Manager) Respond(ctx context.Context, t *turn, tok menu.Token, ok bool) {
	s := m.lookup(t.user.ID, t.user.State)
	if !ok || !s.accepts(tok) {
		logger.Debug(ctx, logger.CompEngine, "state.unknown_input", slog.String("token", string(tok)))
		t.emit(response.UnknownCommand().Standalone())
		s.start(m, ctx, t)
		return
	}
	if tok == menu.Help {
		t.emit(response.MenuHelp(s.layout.Tokens()), response.Keyboard(m.keyboard(ctx, t, s)))
		return
	}
	s.respond(m, ctx, t, tok)
}

// keyboard returns the keyboard of s for t. Link buttons are resolved here.
func (m *Manager) keyboard(ctx context.Context, t *turn, s state) menu.Keyboard {
	if !slices.Contains(s.layout.Tokens(), menu.AuthBegin) {
		return s.layout
	}
	kb := menu.Keyboard{Inline: true}
	for _, row := range s.layout.Rows {
		out := make([]menu.Button, 0, len(row))
		for _, b := range row {
			if b.Token == menu.AuthBegin {
				link, err := m.auth.AuthLink(ctx, t.user.ID, m.profiles.AccessRights())
				if err != nil {
					logger.Error(ctx, logger.CompAuth, "auth.link", slog.String("status", "fail"), slog.String("err", err.Error()))
					continue
				}
				b.Link = link
			}
			out = append(out, b)
		}
		if len(out) > 0 {
			kb.Rows = append(kb.Rows, out)
		}
	}
	return kb
}

// requireAuth forgets the current token and detours to authorization.
func (m *Manager) requireAuth(ctx context.Context, t *turn) {
	logger.Info(ctx, logger.CompEngine, "auth.required")
	t.token = ""
	m.Start(ctx, t, model.StateAuth)
}

// saveProgress persists t.progress after fn changed a copy of it.
func (m *Manager) saveProgress(ctx context.Context, t *turn, fn func(p *model.Progress)) error {
	p := t.progress
	fn(&p)
	if err := store.WithTx(ctx, m.store, func(tx store.Tx) error {
		return tx.SaveProgress(ctx, p)
	}); err != nil {
		return err
	}
	t.progress = p
	return nil
}

// attachPhotos adds the most liked photos of ownerID. Failures only produce a notice.
func (m *Manager) attachPhotos(ctx context.Context, t *turn, ownerID int64) {
	if t.token == "" {
		return
	}
	photos, err := m.profiles.GetPhotos(ctx, t.token, ownerID, true, photoLimit)
	if err != nil {
		logger.Warn(ctx, logger.CompEngine, "photos.get",
			slog.String("status", "fail"),
			slog.Int64("profile_id", ownerID),
			slog.String("err", err.Error()),
		)
		t.emit(response.PhotoFailed())
		return
	}
	if len(photos) > 0 {
		t.emit(response.AttachMedia(photos))
	}
}
