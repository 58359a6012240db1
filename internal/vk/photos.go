package vk

import (
	"cmp"
	"context"
	"net/url"
	"slices"
	"strconv"

	"github.com/m3rciful/vkinder/internal/model"
)

type photoSize struct {
	Type   string `json:"type"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type photoJSON struct {
	ID      int64       `json:"id"`
	OwnerID int64       `json:"owner_id"`
	Sizes   []photoSize `json:"sizes"`
	Likes   struct {
		Count int `json:"count"`
	} `json:"likes"`
}

// largest returns the URL of the biggest size.
func (p photoJSON) largest() string {
	if len(p.Sizes) == 0 {
		return ""
	}
	best := slices.MaxFunc(p.Sizes, func(a, b photoSize) int {
		return cmp.Compare(a.Width*a.Height, b.Width*b.Height)
	})
	return best.URL
}

// GetPhotos returns up to limit profile photos of ownerID, most liked first when byLikes is set.
func (c *Client) GetPhotos(ctx context.Context, token string, ownerID int64, byLikes bool, limit int) ([]model.Photo, error) {
	params := url.Values{
		"owner_id": {idString(ownerID)},
		"album_id": {"profile"},
		"extended": {"1"},
		"rev":      {"1"},
		"count":    {strconv.Itoa(searchPageSize)},
	}
	var page struct {
		Items []photoJSON `json:"items"`
	}
	if err := c.call(ctx, "photos.get", token, params, &page); err != nil {
		return nil, err
	}

	photos := make([]model.Photo, 0, len(page.Items))
	for _, it := range page.Items {
		photos = append(photos, model.Photo{ID: it.ID, OwnerID: it.OwnerID, Likes: it.Likes.Count, URL: it.largest()})
	}
	if byLikes {
		slices.SortStableFunc(photos, func(a, b model.Photo) int { return cmp.Compare(b.Likes, a.Likes) })
	}
	if limit > 0 && len(photos) > limit {
		photos = photos[:limit]
	}
	return photos, nil
}
