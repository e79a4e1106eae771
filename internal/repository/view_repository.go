package repository

import (
	"context"
	"sync"

	"github.com/qwamber/qwala-go/internal/models"
)

type ViewRepository interface {
	RecordView(ctx context.Context, view *models.View) error
	ListViews(ctx context.Context, shortLinkID string) ([]models.View, error)
	DeleteViews(ctx context.Context, shortLinkID string) error
}

type viewRepository struct {
	mu    sync.RWMutex
	views map[string][]models.View // shortLinkID -> views in arrival order
}

func NewViewRepository() ViewRepository {
	return &viewRepository{
		views: make(map[string][]models.View),
	}
}

func (r *viewRepository) RecordView(ctx context.Context, view *models.View) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views[view.ShortLinkID] = append(r.views[view.ShortLinkID], *view)
	return nil
}

// ListViews returns a copy, never nil.
func (r *viewRepository) ListViews(ctx context.Context, shortLinkID string) ([]models.View, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	views := make([]models.View, len(r.views[shortLinkID]))
	copy(views, r.views[shortLinkID])
	return views, nil
}

func (r *viewRepository) DeleteViews(ctx context.Context, shortLinkID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.views, shortLinkID)
	return nil
}
