// Package search finds candidate profiles for a user.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/vkinder/core/logger"
	"github.com/m3rciful/vkinder/internal/model"
	"github.com/m3rciful/vkinder/internal/provider"
)

// AgeGap widens the age window on both sides of the requester's age.
const AgeGap = 1

// DefaultMaxChecks bounds the number of profiles fetched to re-validate one pick.
const DefaultMaxChecks = 25

// Validation errors returned by BuildQuery.
var (
	ErrSexMissing      = errors.New("search: profile sex is not set")
	ErrCityMissing     = errors.New("search: profile city is not set")
	ErrBirthdayMissing = errors.New("search: profile birthday is not set")
)

// ErrNoCandidates means every candidate was filtered out or failed re-validation.
var ErrNoCandidates = errors.New("search: no candidates")

// passes are the orderings merged into one candidate list, most relevant first.
var passes = []model.SearchSort{model.SortRelevance, model.SortNewest}

// BuildQuery derives the candidate filter from the requester's profile.
func BuildQuery(p model.Profile, now time.Time) (model.SearchQuery, error) {
	sex, ok := p.Sex.Opposite()
	if !ok {
		return model.SearchQuery{}, ErrSexMissing
	}
	if p.CityID == 0 {
		return model.SearchQuery{}, ErrCityMissing
	}
	age, ok := p.Age(now)
	if !ok {
		return model.SearchQuery{}, ErrBirthdayMissing
	}
	return model.SearchQuery{
		Sex:      sex,
		CityID:   p.CityID,
		AgeMin:   max(age-AgeGap, 0),
		AgeMax:   age + AgeGap,
		Online:   true,
		HasPhoto: true,
	}, nil
}

// Request is one candidate lookup.
type Request struct {
	UserID    int64
	Token     string
	Query     model.SearchQuery
	Blacklist []int64
}

// Options tune a Pipeline. Zero values pick defaults.
type Options struct {
	Now       func() time.Time
	Rand      *rand.Rand
	MaxChecks int
}

// Pipeline merges search passes, filters them and picks one valid candidate.
type Pipeline struct {
	provider  provider.ProfileProvider
	cache     Cache
	now       func() time.Time
	maxChecks int

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// NewPipeline returns a pipeline reading from p and caching in c.
func NewPipeline(p provider.ProfileProvider, c Cache, opts Options) *Pipeline {
	pl := &Pipeline{
		provider:  p,
		cache:     c,
		now:       opts.Now,
		maxChecks: opts.MaxChecks,
		rnd:       opts.Rand,
	}
	if pl.now == nil {
		pl.now = time.Now
	}
	if pl.maxChecks <= 0 {
		pl.maxChecks = DefaultMaxChecks
	}
	if pl.rnd == nil {
		pl.rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return pl
}

// Candidates returns the merged ids of all passes, served from cache when fresh.
func (pl *Pipeline) Candidates(ctx context.Context, userID int64, token string, q model.SearchQuery) ([]int64, error) {
	if ids, ok := pl.cache.Get(ctx, userID); ok {
		logger.Debug(ctx, logger.CompSearch, "search.cache", slog.String("cache", "hit"), slog.Int("candidates", len(ids)))
		return ids, nil
	}

	results := make([][]int64, len(passes))
	g, gctx := errgroup.WithContext(ctx)
	for i, sort := range passes {
		g.Go(func() error {
			pass := q
			pass.Sort = sort
			ids, err := pl.provider.Search(gctx, token, pass)
			if err != nil {
				return fmt.Errorf("search: pass %d: %w", i, err)
			}
			results[i] = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ids := Dedupe(results...)
	pl.cache.Put(ctx, userID, ids)
	logger.Debug(ctx, logger.CompSearch, "search.cache",
		slog.String("cache", "miss"),
		slog.Int("candidates", len(ids)),
	)
	return ids, nil
}

// Find returns one random candidate that passes the blacklist and still matches the query.
func (pl *Pipeline) Find(ctx context.Context, req Request) (model.Profile, error) {
	ids, err := pl.Candidates(ctx, req.UserID, req.Token, req.Query)
	if err != nil {
		return model.Profile{}, err
	}
	ids = Exclude(ids, req.Blacklist)

	pl.rndMu.Lock()
	pl.rnd.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	pl.rndMu.Unlock()

	now := pl.now()
	for i, id := range ids {
		if i >= pl.maxChecks {
			break
		}
		prof, err := pl.provider.GetProfile(ctx, id)
		switch provider.Kind(err) {
		case provider.KindNone:
		case provider.KindNotFound:
			continue
		default:
			return model.Profile{}, err
		}
		if req.Query.Matches(prof, now) {
			logger.Debug(ctx, logger.CompSearch, "search.pick",
				slog.Int64("profile_id", prof.ID),
				slog.Int("candidates", len(ids)),
				slog.Int("attempts", i+1),
			)
			return prof, nil
		}
	}
	logger.Info(ctx, logger.CompSearch, "search.empty", slog.Int("candidates", len(ids)))
	return model.Profile{}, ErrNoCandidates
}

// Dedupe concatenates lists keeping the first occurrence of every id.
func Dedupe(lists ...[]int64) []int64 {
	seen := make(map[int64]struct{})
	var out []int64
	for _, list := range lists {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// Exclude returns a new slice of ids without the excluded ones.
func Exclude(ids, excluded []int64) []int64 {
	skip := make(map[int64]struct{}, len(excluded))
	for _, id := range excluded {
		skip[id] = struct{}{}
	}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := skip[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
