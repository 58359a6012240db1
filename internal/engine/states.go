package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m3rciful/vkinder/core/logger"
	"github.com/m3rciful/vkinder/internal/menu"
	"github.com/m3rciful/vkinder/internal/model"
	"github.com/m3rciful/vkinder/internal/provider"
	"github.com/m3rciful/vkinder/internal/response"
	"github.com/m3rciful/vkinder/internal/search"
	"github.com/m3rciful/vkinder/internal/store"
)

var (
	mainMenuLayout = (&menu.Builder{}).
			Row(menu.Primary(menu.Search)).
			Row(menu.Btn(menu.Profile)).
			Row(menu.Positive(menu.Favorites), menu.Negative(menu.Blacklist)).
			Row(menu.Btn(menu.Help)).
			Keyboard()

	searchingLayout = (&menu.Builder{}).
			Row(menu.Primary(menu.Next)).
			Row(menu.Positive(menu.AddFavorite), menu.Negative(menu.AddBlacklist)).
			Row(menu.Btn(menu.GoBack), menu.Btn(menu.Help)).
			Keyboard()

	authLayout = (&menu.Builder{}).
			Row(menu.Link(menu.AuthBegin, "")).
			Row(menu.Positive(menu.AuthFinished)).
			Row(menu.Btn(menu.GoBack), menu.Btn(menu.Help)).
			Keyboard()
)

func (m *Manager) startNewUser(ctx context.Context, t *turn) {
	t.emit(response.GreetNewUser(t.user.Profile.DisplayName()))
	m.Start(ctx, t, model.StateMainMenu)
}

func (m *Manager) startMainMenu(ctx context.Context, t *turn) {
	t.emit(response.SelectMenu(), response.Keyboard(mainMenuLayout))
}

func (m *Manager) respondMainMenu(ctx context.Context, t *turn, tok menu.Token) {
	switch tok {
	case menu.Search:
		m.Start(ctx, t, model.StateSearching)
	case menu.Favorites:
		m.Start(ctx, t, model.StateFavoriteList)
	case menu.Blacklist:
		m.Start(ctx, t, model.StateBlacklist)
	case menu.Profile:
		if t.token == "" || !t.user.Linked() {
			m.requireAuth(ctx, t)
			return
		}
		t.emit(response.YourProfile(t.user.Profile))
		m.attachPhotos(ctx, t, t.user.Profile.ID)
		t.emit(response.Keyboard(mainMenuLayout))
	}
}

// startSearching shows one candidate or returns to the main menu.
func (m *Manager) startSearching(ctx context.Context, t *turn) {
	if t.token == "" {
		m.requireAuth(ctx, t)
		return
	}

	q, err := search.BuildQuery(t.user.Profile, m.now())
	if err != nil {
		switch {
		case errors.Is(err, search.ErrSexMissing):
			t.emit(response.UserSexMissing())
		case errors.Is(err, search.ErrCityMissing):
			t.emit(response.UserCityMissing())
		default:
			t.emit(response.UserBirthdayMissing())
		}
		logger.Info(ctx, logger.CompEngine, "search.rejected", slog.String("reason", err.Error()))
		m.Start(ctx, t, model.StateMainMenu)
		return
	}

	var blacklist []int64
	if err := store.WithTx(ctx, m.store, func(tx store.Tx) error {
		blacklist, err = tx.EntryIDs(ctx, model.Blacklist, t.user.ID)
		return err
	}); err != nil {
		m.searchFailed(ctx, t, err)
		return
	}

	prof, err := m.finder.Find(ctx, search.Request{
		UserID:    t.user.ID,
		Token:     t.token,
		Query:     q,
		Blacklist: blacklist,
	})
	switch {
	case errors.Is(err, search.ErrNoCandidates):
		t.emit(response.SearchFailed())
		m.Start(ctx, t, model.StateMainMenu)
		return
	case provider.Kind(err) == provider.KindToken:
		m.requireAuth(ctx, t)
		return
	case err != nil:
		m.searchFailed(ctx, t, err)
		return
	}

	if err := m.saveProgress(ctx, t, func(p *model.Progress) { p.LastFoundID = prof.ID }); err != nil {
		m.searchFailed(ctx, t, err)
		return
	}
	logger.Info(ctx, logger.CompEngine, "search.result", slog.Int64("profile_id", prof.ID))
	t.emit(response.SearchResult(prof))
	m.attachPhotos(ctx, t, prof.ID)
	t.emit(response.Keyboard(searchingLayout))
}

func (m *Manager) searchFailed(ctx context.Context, t *turn, err error) {
	logger.Error(ctx, logger.CompEngine, "search.error", slog.String("err", err.Error()))
	t.emit(response.SearchError())
	m.Start(ctx, t, model.StateMainMenu)
}

func (m *Manager) respondSearching(ctx context.Context, t *turn, tok menu.Token) {
	switch tok {
	case menu.Next:
		m.startSearching(ctx, t)
	case menu.AddFavorite:
		m.classify(ctx, t, model.Favorites, t.progress.LastFoundID)
		t.emit(response.Keyboard(searchingLayout))
	case menu.AddBlacklist:
		m.classify(ctx, t, model.Blacklist, t.progress.LastFoundID)
		t.emit(response.Keyboard(searchingLayout))
	case menu.GoBack:
		m.Start(ctx, t, model.StateMainMenu)
	}
}

// classify moves profileID into kind. A zero id means nothing is shown and is a failure.
func (m *Manager) classify(ctx context.Context, t *turn, kind model.ListKind, profileID int64) bool {
	if profileID == 0 {
		t.emit(response.AddFailed(kind))
		return false
	}
	err := store.WithTx(ctx, m.store, func(tx store.Tx) error {
		return store.Classify(ctx, tx, kind, t.user.ID, profileID)
	})
	if err != nil {
		logger.Error(ctx, logger.CompEngine, "list.classify",
			slog.String("status", "fail"),
			slog.String("list", kind.String()),
			slog.Int64("profile_id", profileID),
			slog.String("err", err.Error()),
		)
		t.emit(response.AddFailed(kind))
		return false
	}
	logger.Info(ctx, logger.CompEngine, "list.classify",
		slog.String("status", "ok"),
		slog.String("list", kind.String()),
		slog.Int64("profile_id", profileID),
	)
	t.emit(response.Added(kind))
	return true
}

func (m *Manager) startAuth(ctx context.Context, t *turn) {
	t.emit(response.AuthRequired(), response.Keyboard(m.keyboard(ctx, t, m.states[model.StateAuth])))
}

func (m *Manager) respondAuth(ctx context.Context, t *turn, tok menu.Token) {
	switch tok {
	case menu.AuthBegin:
		m.startAuth(ctx, t)
	case menu.AuthFinished:
		if t.token == "" || !m.profiles.ValidateToken(ctx, t.token) {
			t.emit(response.AuthNotCompleted())
			m.startAuth(ctx, t)
			return
		}
		next := t.progress.LastState
		if !resumable(next) {
			next = model.StateMainMenu
		}
		logger.Info(ctx, logger.CompEngine, "auth.resume", slog.String("next_state", string(next)))
		m.Start(ctx, t, next)
	case menu.GoBack:
		m.Start(ctx, t, model.StateMainMenu)
	}
}
