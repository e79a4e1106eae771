package qwala

import (
	"encoding/json"
	"math"
	"time"
)

// ShortenOptions дополнительные параметры создания короткой ссылки.
// Незаданные поля (nil или пустая строка) не попадают в тело запроса.
type ShortenOptions struct {
	// IsWords генерировать ID из слов вместо букв и цифр.
	// Сервер игнорирует флаг, если задан CustomShortLinkID.
	IsWords *bool
	// HideStatistics скрыть статистику просмотров ссылки
	HideStatistics *bool
	// ExpiryDate момент истечения ссылки; nil - ссылка бессрочная
	ExpiryDate *time.Time
	// CustomShortLinkID собственный ID вместо сгенерированного
	CustomShortLinkID string
}

// View одна запись о просмотре короткой ссылки
type View struct {
	IPAddress string    `json:"ipAddress"`
	Viewed    time.Time `json:"viewed"`
}

// BatchItem элемент пакетного сокращения
type BatchItem struct {
	LongLink string
	Options  *ShortenOptions
}

type shortenRequest struct {
	LongLink          string  `json:"longLink"`
	IsWords           *bool   `json:"isWords,omitempty"`
	ExpiryDate        *int64  `json:"expiryDate,omitempty"`
	HideStatistics    *bool   `json:"hideStatistics,omitempty"`
	CustomShortLinkID *string `json:"customShortLinkID,omitempty"`
}

type shortenResponse struct {
	ShortLinkID *string `json:"shortLinkID"`
}

type lengthenResponse struct {
	LongLink *string `json:"longLink"`
}

type statisticsResponse struct {
	Views json.RawMessage `json:"views"`
}

func newShortenRequest(longLink string, opts *ShortenOptions) shortenRequest {
	req := shortenRequest{LongLink: longLink}
	if opts == nil {
		return req
	}

	req.IsWords = opts.IsWords
	req.HideStatistics = opts.HideStatistics
	if opts.ExpiryDate != nil {
		sec := EpochSeconds(*opts.ExpiryDate)
		req.ExpiryDate = &sec
	}
	if opts.CustomShortLinkID != "" {
		id := opts.CustomShortLinkID
		req.CustomShortLinkID = &id
	}

	return req
}

// EpochSeconds переводит момент времени в Unix-секунды с округлением
// до ближайшей секунды, как этого ожидает API.
func EpochSeconds(t time.Time) int64 {
	return int64(math.Round(float64(t.UnixMilli()) / 1000))
}

// Bool возвращает указатель на значение, удобно для заполнения ShortenOptions
func Bool(v bool) *bool {
	return &v
}

// Time возвращает указатель на значение
func Time(t time.Time) *time.Time {
	return &t
}
