// Package providertest provides scripted provider fakes for tests.
package providertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/m3rciful/vkinder/internal/model"
	"github.com/m3rciful/vkinder/internal/provider"
)

// Profiles is a scripted ProfileProvider.
type Profiles struct {
	mu sync.Mutex

	// ByID serves GetProfile; missing ids yield provider.ErrNotFound.
	ByID map[int64]model.Profile
	// Passes serves Search per sort order.
	Passes map[model.SearchSort][]int64
	// Photos serves GetPhotos per owner.
	Photos map[int64][]model.Photo
	// ValidTokens lists tokens accepted by ValidateToken and Search.
	ValidTokens map[string]bool

	SearchErr  error
	ProfileErr map[int64]error
	PhotosErr  error

	SearchCalls  int
	ProfileCalls int
	Queries      []model.SearchQuery
}

// NewProfiles returns an empty fake accepting token.
func NewProfiles(token string) *Profiles {
	return &Profiles{
		ByID:        map[int64]model.Profile{},
		Passes:      map[model.SearchSort][]int64{},
		Photos:      map[int64][]model.Photo{},
		ValidTokens: map[string]bool{token: true},
		ProfileErr:  map[int64]error{},
	}
}

// Add registers profiles by id.
func (f *Profiles) Add(profiles ...model.Profile) *Profiles {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range profiles {
		f.ByID[p.ID] = p
	}
	return f
}

func (f *Profiles) GetProfile(_ context.Context, id int64) (model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ProfileCalls++
	if err := f.ProfileErr[id]; err != nil {
		return model.Profile{}, err
	}
	p, ok := f.ByID[id]
	if !ok {
		return model.Profile{}, fmt.Errorf("fake: profile %d: %w", id, provider.ErrNotFound)
	}
	return p, nil
}

func (f *Profiles) GetPhotos(_ context.Context, token string, ownerID int64, _ bool, limit int) ([]model.Photo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PhotosErr != nil {
		return nil, f.PhotosErr
	}
	photos := f.Photos[ownerID]
	if len(photos) > limit {
		photos = photos[:limit]
	}
	return photos, nil
}

func (f *Profiles) Search(_ context.Context, token string, q model.SearchQuery) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SearchCalls++
	f.Queries = append(f.Queries, q)
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	if !f.ValidTokens[token] {
		return nil, provider.ErrToken
	}
	return append([]int64(nil), f.Passes[q.Sort]...), nil
}

func (f *Profiles) ValidateToken(_ context.Context, token string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ValidTokens[token]
}

func (f *Profiles) AccessRights() string { return "photos" }

// Auth is a scripted AuthProvider.
type Auth struct {
	mu sync.Mutex

	Link       string
	RefreshErr error
	Refreshed  model.AuthRecord
	Refreshes  int
}

func (a *Auth) AuthLink(_ context.Context, userID int64, rights string) (string, error) {
	return fmt.Sprintf("%s?user=%d&scope=%s", a.Link, userID, rights), nil
}

func (a *Auth) Refresh(_ context.Context, rec model.AuthRecord) (model.AuthRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Refreshes++
	if a.RefreshErr != nil {
		return model.AuthRecord{}, a.RefreshErr
	}
	out := a.Refreshed
	out.UserID = rec.UserID
	return out, nil
}
