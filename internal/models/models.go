// Package models defines the core domain entities: catalog products,
// purchase transactions, user profiles, and group members.
package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Product type tags as they appear in the catalog file and the revenue feed.
const (
	TypeGamePass = "GamePass"
	TypeAsset    = "Asset"
	TypeBadge    = "Badge"
)

// DefaultEmbedColor is Discord blurple, used when a product declares no color.
const DefaultEmbedColor = 0x5865F2

// Product is a single catalog entry. A product with Rank > 0 triggers
// auto-ranking on purchase; Rank == 0 means tracking-only (notification
// without rank assignment).
type Product struct {
	ID    int64  `yaml:"id"`
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Rank  int    `yaml:"rank,omitempty"`
	Color string `yaml:"color,omitempty"`
}

// Validate checks product field constraints.
func (p *Product) Validate() error {
	if p.ID <= 0 {
		return errors.New("product ID must be positive")
	}
	if p.Name == "" {
		return errors.New("product name must not be empty")
	}
	switch p.Type {
	case TypeGamePass, TypeAsset, TypeBadge:
	default:
		return fmt.Errorf("product type must be one of %s, %s, %s", TypeGamePass, TypeAsset, TypeBadge)
	}
	if p.Rank < 0 || p.Rank > 255 {
		return errors.New("product rank must be between 0 and 255")
	}
	if p.Color != "" {
		if _, err := parseHexColor(p.Color); err != nil {
			return fmt.Errorf("invalid product color: %w", err)
		}
	}
	return nil
}

// Ranked reports whether the product triggers auto-ranking.
func (p *Product) Ranked() bool {
	return p.Rank > 0
}

// ColorInt returns the embed color as an integer, falling back to
// DefaultEmbedColor when no color is configured.
func (p *Product) ColorInt() int {
	if p.Color == "" {
		return DefaultEmbedColor
	}
	c, err := parseHexColor(p.Color)
	if err != nil {
		return DefaultEmbedColor
	}
	return c
}

func parseHexColor(s string) (int, error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return 0, fmt.Errorf("expected 6 hex digits, got %q", s)
	}
	v, err := strconv.ParseInt(s, 16, 32)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

// Item identifies the purchased product within a transaction.
type Item struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Transaction is a single entry from the group revenue feed. Never mutated
// after decoding; identity for dedup purposes is (UserID, Item.ID, Created).
type Transaction struct {
	UserID   int64     `json:"user_id"`
	Item     Item      `json:"item"`
	Created  time.Time `json:"created"`
	Amount   float64   `json:"amount"`
	Currency string    `json:"currency"`
}

// Key reduces the transaction identity triple to an opaque dedup key.
func (t *Transaction) Key() string {
	return fmt.Sprintf("%d-%d-%d", t.UserID, t.Item.ID, t.Created.UnixMilli())
}

// Validate checks transaction field constraints.
func (t *Transaction) Validate() error {
	if t.UserID <= 0 {
		return errors.New("transaction user ID must be positive")
	}
	if t.Item.ID <= 0 {
		return errors.New("transaction item ID must be positive")
	}
	if t.Created.IsZero() {
		return errors.New("transaction created time must be set")
	}
	return nil
}

// Profile holds the public profile fields used in purchase notifications.
type Profile struct {
	UserID         int64
	Username       string
	DisplayName    string
	AccountAgeDays int
	JoinDate       time.Time
	AvatarURL      string
}

// PlaceholderProfile builds the best-effort fallback used when the profile
// fetch fails. Notifications still go out with these fields.
func PlaceholderProfile(userID int64) *Profile {
	return &Profile{
		UserID:      userID,
		Username:    "Unknown User",
		DisplayName: "Unknown",
		JoinDate:    time.Now(),
		AvatarURL:   FallbackAvatarURL(userID),
	}
}

// FallbackAvatarURL returns the legacy headshot URL for a user, used when
// the thumbnail API yields nothing.
func FallbackAvatarURL(userID int64) string {
	return fmt.Sprintf("https://www.roblox.com/headshot-thumbnail/image?userId=%d", userID)
}

// Member is a single group member with their current rank.
type Member struct {
	UserID   int64
	Username string
	Rank     int
}
