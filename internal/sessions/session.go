package sessions

import (
	"errors"
	"time"
)

// ErrSessionNotFound is returned when a session id does not match any row.
// Ingestion treats it as soft: the record is kept, the aggregate is skipped.
var ErrSessionNotFound = errors.New("session not found")

// Location is the geolocation snapshot taken when the session opened.
type Location struct {
	Country     string   `json:"country"`
	CountryCode string   `json:"countryCode"`
	Region      string   `json:"region"`
	City        string   `json:"city"`
	Timezone    string   `json:"timezone"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
}

// Device mirrors visitors.DeviceInfo as stored columns.
type Device struct {
	Type           string `gorm:"index" json:"type"`
	Browser        string `gorm:"index" json:"browser"`
	BrowserVersion string `json:"browserVersion"`
	OS             string `gorm:"index" json:"os"`
	OSVersion      string `json:"osVersion"`
	IsMobile       bool   `json:"isMobile"`
	IsTablet       bool   `json:"isTablet"`
	IsDesktop      bool   `json:"isDesktop"`
}

type Screen struct {
	Width      int `json:"width"`
	Height     int `json:"height"`
	ColorDepth int `json:"colorDepth"`
}

// Session is one burst of activity from one device fingerprint.
//
// FirstVisit never changes after insert and LastActivity only moves
// forward. PageViews and TotalDuration are only ever incremented in SQL.
type Session struct {
	ID                uint     `gorm:"primaryKey" json:"-"`
	SessionID         string   `gorm:"uniqueIndex;size:40;not null" json:"sessionId"`
	VisitorID         string   `gorm:"index;size:32;not null" json:"visitorId"`
	DeviceFingerprint string   `gorm:"index:idx_sessions_fingerprint_activity,priority:1;size:64;not null" json:"-"`
	IPAddress         string   `json:"-"`
	UserAgent         string   `json:"userAgent"`
	Location          Location `gorm:"embedded;embeddedPrefix:location_" json:"location"`
	Device            Device   `gorm:"embedded;embeddedPrefix:device_" json:"device"`
	Screen            Screen   `gorm:"embedded;embeddedPrefix:screen_" json:"screen"`
	Language          string   `json:"language"`
	Timezone          string   `json:"timezone"`
	Referrer          string   `json:"referrer"`
	LandingPage       string   `json:"landingPage"`

	FirstVisit   time.Time `gorm:"index;not null" json:"firstVisit"`
	LastActivity time.Time `gorm:"index:idx_sessions_fingerprint_activity,priority:2;index;not null" json:"lastActivity"`

	PageViews          int   `gorm:"not null;default:0" json:"pageViews"`
	TotalDuration      int64 `gorm:"not null;default:0" json:"totalDuration"`
	IsReturningVisitor bool  `gorm:"not null;default:false" json:"isReturningVisitor"`

	Source   string `gorm:"index" json:"source"`
	Medium   string `json:"medium"`
	Campaign string `json:"campaign"`
	Term     string `json:"term"`
	Content  string `json:"content"`

	// Written by the finalizer job once the session window has passed.
	ExitPage    string     `json:"exitPage"`
	Bounced     bool       `gorm:"not null;default:false" json:"bounced"`
	FinalizedAt *time.Time `gorm:"index" json:"finalizedAt,omitempty"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

func (Session) TableName() string {
	return "visitor_sessions"
}

// IsBounce reports the session-level bounce: exactly one page viewed.
func (s Session) IsBounce() bool {
	return s.PageViews == 1
}
