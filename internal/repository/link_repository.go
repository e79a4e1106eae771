package repository

import (
	"context"
	"errors"
	"sync"

	"github.com/qwamber/qwala-go/internal/models"
)

var (
	ErrLinkNotFound = errors.New("link not found")
	ErrCodeExists   = errors.New("short link ID already exists")
)

type LinkRepository interface {
	Create(ctx context.Context, link *models.Link) error
	GetByShortLinkID(ctx context.Context, shortLinkID string) (*models.Link, error)
	Delete(ctx context.Context, shortLinkID string) error
}

// linkRepository keeps links in process memory. Nothing survives a restart.
type linkRepository struct {
	mu    sync.RWMutex
	links map[string]*models.Link
}

func NewLinkRepository() LinkRepository {
	return &linkRepository{
		links: make(map[string]*models.Link),
	}
}

func (r *linkRepository) Create(ctx context.Context, link *models.Link) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.links[link.ShortLinkID]; exists {
		return ErrCodeExists
	}

	stored := *link
	r.links[link.ShortLinkID] = &stored
	return nil
}

func (r *linkRepository) GetByShortLinkID(ctx context.Context, shortLinkID string) (*models.Link, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	link, exists := r.links[shortLinkID]
	if !exists {
		return nil, ErrLinkNotFound
	}

	found := *link
	return &found, nil
}

func (r *linkRepository) Delete(ctx context.Context, shortLinkID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.links[shortLinkID]; !exists {
		return ErrLinkNotFound
	}
	delete(r.links, shortLinkID)
	return nil
}
