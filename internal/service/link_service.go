package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/qwamber/qwala-go/internal/models"
	"github.com/qwamber/qwala-go/internal/repository"
	"go.uber.org/zap"
)

// Ошибки сервиса
var (
	ErrInvalidLongLink    = errors.New("невалидная длинная ссылка")
	ErrInvalidShortLinkID = errors.New("невалидный ID короткой ссылки")
	ErrStatisticsHidden   = errors.New("статистика ссылки скрыта")
)

// Константы сервиса
const (
	codeLength       = 8
	wordsPerID       = 3
	maxCreateRetries = 5
	charset          = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Словарь для ID из слов
var words = []string{
	"amber", "bold", "brave", "calm", "cedar", "clever", "coral", "crisp",
	"eager", "fancy", "fern", "gentle", "happy", "jolly", "lucky", "maple",
	"mellow", "misty", "noble", "olive", "proud", "quick", "quiet", "rapid",
	"river", "royal", "silent", "silver", "sunny", "swift", "tidy", "witty",
}

var (
	longLinkPattern    = regexp.MustCompile(`^https?://[^\s]+$`)
	shortLinkIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
)

// LinkService интерфейс сервиса ссылок заглушки
type LinkService interface {
	CreateLink(ctx context.Context, input *models.CreateLinkInput) (*models.Link, error)
	GetLink(ctx context.Context, shortLinkID string) (*models.Link, error)
	Lengthen(ctx context.Context, shortLinkID, ipAddress string) (*models.Link, error)
	GetViews(ctx context.Context, shortLinkID string) ([]models.View, error)
}

// linkService реализация сервиса ссылок
type linkService struct {
	linkRepo repository.LinkRepository
	viewRepo repository.ViewRepository
	logger   *zap.Logger
	now      func() time.Time
}

// NewLinkService создаёт новый экземпляр сервиса
func NewLinkService(linkRepo repository.LinkRepository, viewRepo repository.ViewRepository, logger *zap.Logger) LinkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &linkService{
		linkRepo: linkRepo,
		viewRepo: viewRepo,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateLink создаёт новую короткую ссылку
func (s *linkService) CreateLink(ctx context.Context, input *models.CreateLinkInput) (*models.Link, error) {
	// Валидация URL
	if !longLinkPattern.MatchString(input.LongLink) {
		return nil, ErrInvalidLongLink
	}

	if input.CustomShortLinkID != "" {
		if !shortLinkIDPattern.MatchString(input.CustomShortLinkID) {
			return nil, ErrInvalidShortLinkID
		}
		link := s.newLink(input.CustomShortLinkID, input)
		if err := s.linkRepo.Create(ctx, link); err != nil {
			return nil, err
		}
		return link, nil
	}

	// Генерация ID с повтором при коллизии
	for attempt := 0; attempt < maxCreateRetries; attempt++ {
		id, err := s.generateID(input.IsWords)
		if err != nil {
			return nil, fmt.Errorf("failed to generate ID: %w", err)
		}

		link := s.newLink(id, input)
		err = s.linkRepo.Create(ctx, link)
		if err == nil {
			return link, nil
		}
		if !errors.Is(err, repository.ErrCodeExists) {
			return nil, err
		}
		s.logger.Debug("Short link ID collision, regenerating", zap.String("short_link_id", id), zap.Int("attempt", attempt+1))
	}

	return nil, repository.ErrCodeExists
}

// GetLink получает действующую ссылку по ID
func (s *linkService) GetLink(ctx context.Context, shortLinkID string) (*models.Link, error) {
	link, err := s.linkRepo.GetByShortLinkID(ctx, shortLinkID)
	if err != nil {
		return nil, err
	}

	if link.Expired(s.now()) {
		return nil, repository.ErrLinkNotFound
	}

	return link, nil
}

// Lengthen получает ссылку и записывает просмотр
func (s *linkService) Lengthen(ctx context.Context, shortLinkID, ipAddress string) (*models.Link, error) {
	link, err := s.GetLink(ctx, shortLinkID)
	if err != nil {
		return nil, err
	}

	view := &models.View{
		ShortLinkID: shortLinkID,
		IPAddress:   ipAddress,
		Viewed:      s.now().UTC(),
	}
	if err := s.viewRepo.RecordView(ctx, view); err != nil {
		// Просмотр теряем, но ссылку отдаём
		s.logger.Warn("Failed to record view", zap.String("short_link_id", shortLinkID), zap.Error(err))
	}

	return link, nil
}

// GetViews возвращает просмотры ссылки, если статистика не скрыта
func (s *linkService) GetViews(ctx context.Context, shortLinkID string) ([]models.View, error) {
	link, err := s.GetLink(ctx, shortLinkID)
	if err != nil {
		return nil, err
	}

	if link.HideStatistics {
		return nil, ErrStatisticsHidden
	}

	return s.viewRepo.ListViews(ctx, shortLinkID)
}

func (s *linkService) newLink(id string, input *models.CreateLinkInput) *models.Link {
	return &models.Link{
		ShortLinkID:    id,
		LongLink:       input.LongLink,
		ExpiresAt:      input.ExpiresAt,
		HideStatistics: input.HideStatistics,
		CreatedAt:      s.now().UTC(),
	}
}

func (s *linkService) generateID(isWords bool) (string, error) {
	if isWords {
		return generateWordsID()
	}
	return generateShortCode()
}

// generateShortCode генерирует случайный код длиной 8 символов
func generateShortCode() (string, error) {
	result := make([]byte, codeLength)
	for i := 0; i < codeLength; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[num.Int64()]
	}
	return string(result), nil
}

// generateWordsID склеивает несколько слов с заглавной буквы: "SwiftAmberRiver"
func generateWordsID() (string, error) {
	var b strings.Builder
	for i := 0; i < wordsPerID; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(words))))
		if err != nil {
			return "", err
		}
		word := words[num.Int64()]
		b.WriteString(strings.ToUpper(word[:1]))
		b.WriteString(word[1:])
	}
	return b.String(), nil
}
