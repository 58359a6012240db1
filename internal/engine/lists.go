package engine

import (
	"context"
	"log/slog"

	"github.com/m3rciful/vkinder/core/logger"
	"github.com/m3rciful/vkinder/internal/menu"
	"github.com/m3rciful/vkinder/internal/model"
	"github.com/m3rciful/vkinder/internal/provider"
	"github.com/m3rciful/vkinder/internal/response"
	"github.com/m3rciful/vkinder/internal/store"
)

var (
	favoriteLayout = (&menu.Builder{}).
			Row(menu.Btn(menu.Prev), menu.Btn(menu.Next)).
			Row(menu.Negative(menu.DeleteFavorite), menu.Negative(menu.AddBlacklist)).
			Row(menu.Btn(menu.GoBack), menu.Btn(menu.Help)).
			Keyboard()

	blacklistLayout = (&menu.Builder{}).
			Row(menu.Btn(menu.Prev), menu.Btn(menu.Next)).
			Row(menu.Positive(menu.AddFavorite), menu.Negative(menu.DeleteBlacklist)).
			Row(menu.Btn(menu.GoBack), menu.Btn(menu.Help)).
			Keyboard()
)

// cursor addresses the pagination fields of kind inside a progress record.
func cursor(p *model.Progress, kind model.ListKind) (index *int, id *int64) {
	if kind == model.Blacklist {
		return &p.LastBlacklistIndex, &p.LastBlacklistID
	}
	return &p.LastFavIndex, &p.LastFavID
}

func layoutOf(kind model.ListKind) menu.Keyboard {
	if kind == model.Blacklist {
		return blacklistLayout
	}
	return favoriteLayout
}

// wrapIndex maps any index onto [0, n).
func wrapIndex(i, n int) int {
	return ((i % n) + n) % n
}

func listStart(kind model.ListKind) startFunc {
	return func(m *Manager, ctx context.Context, t *turn) {
		idx, _ := cursor(&t.progress, kind)
		m.showEntry(ctx, t, kind, *idx)
	}
}

func listRespond(kind model.ListKind) respondFunc {
	return func(m *Manager, ctx context.Context, t *turn, tok menu.Token) {
		idx, id := cursor(&t.progress, kind)
		switch tok {
		case menu.Prev:
			m.showEntry(ctx, t, kind, *idx-1)
		case menu.Next:
			m.showEntry(ctx, t, kind, *idx+1)
		case menu.DeleteFavorite, menu.DeleteBlacklist:
			m.deleteEntry(ctx, t, kind, *id)
			m.showEntry(ctx, t, kind, *idx)
		case menu.AddFavorite, menu.AddBlacklist:
			m.classify(ctx, t, kind.Other(), *id)
			m.showEntry(ctx, t, kind, *idx)
		case menu.GoBack:
			m.Start(ctx, t, model.StateMainMenu)
		}
	}
}

func (m *Manager) deleteEntry(ctx context.Context, t *turn, kind model.ListKind, profileID int64) {
	if profileID == 0 {
		return
	}
	err := store.WithTx(ctx, m.store, func(tx store.Tx) error {
		return tx.DeleteEntry(ctx, kind, t.user.ID, profileID)
	})
	if err != nil {
		logger.Error(ctx, logger.CompEngine, "list.delete",
			slog.String("status", "fail"),
			slog.String("list", kind.String()),
			slog.Int64("profile_id", profileID),
			slog.String("err", err.Error()),
		)
		t.emit(response.ListFailed(kind))
		return
	}
	logger.Info(ctx, logger.CompEngine, "list.delete",
		slog.String("status", "ok"),
		slog.String("list", kind.String()),
		slog.Int64("profile_id", profileID),
	)
}

// showEntry displays entry index of kind, wrapped modulo the list size, and remembers it.
func (m *Manager) showEntry(ctx context.Context, t *turn, kind model.ListKind, index int) {
	var (
		total int
		entry model.ListEntry
	)
	p := t.progress
	err := store.WithTx(ctx, m.store, func(tx store.Tx) error {
		var err error
		if total, err = tx.CountEntries(ctx, kind, t.user.ID); err != nil || total == 0 {
			return err
		}
		idx, id := cursor(&p, kind)
		*idx = wrapIndex(index, total)
		if entry, err = tx.EntryAt(ctx, kind, t.user.ID, *idx); err != nil {
			return err
		}
		*id = entry.ProfileID
		return tx.SaveProgress(ctx, p)
	})
	if err != nil {
		m.listFailed(ctx, t, kind, err)
		return
	}
	if total == 0 {
		t.emit(response.ListEmpty(kind))
		m.Start(ctx, t, model.StateMainMenu)
		return
	}
	t.progress = p
	idx, _ := cursor(&p, kind)

	prof, err := m.profiles.GetProfile(ctx, entry.ProfileID)
	switch provider.Kind(err) {
	case provider.KindNone:
	case provider.KindNotFound:
		// Deleted or banned accounts still occupy their slot.
		prof = model.Profile{ID: entry.ProfileID}
	default:
		m.listFailed(ctx, t, kind, err)
		return
	}
	t.emit(response.ListResult(kind, prof, *idx+1, total))
	m.attachPhotos(ctx, t, prof.ID)
	t.emit(response.Keyboard(layoutOf(kind)))
}

func (m *Manager) listFailed(ctx context.Context, t *turn, kind model.ListKind, err error) {
	logger.Error(ctx, logger.CompEngine, "list.show",
		slog.String("status", "fail"),
		slog.String("list", kind.String()),
		slog.String("err", err.Error()),
	)
	t.emit(response.ListFailed(kind))
	m.Start(ctx, t, model.StateMainMenu)
}
