package models

import (
	"time"
)

type Link struct {
	ShortLinkID    string     `json:"shortLinkID"`
	LongLink       string     `json:"longLink"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	HideStatistics bool       `json:"hideStatistics"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Expired сообщает, истекла ли ссылка к моменту now
func (l *Link) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.After(now)
}

type CreateLinkInput struct {
	LongLink          string
	IsWords           bool
	ExpiresAt         *time.Time
	HideStatistics    bool
	CustomShortLinkID string
}

type View struct {
	ShortLinkID string    `json:"-"`
	IPAddress   string    `json:"ipAddress"`
	Viewed      time.Time `json:"viewed"`
}
