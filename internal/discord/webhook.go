// Package discord provides a client for sending notifications via a Discord
// webhook.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/AiryPlays/roblox-ranking-system/internal/models"
)

// Client posts embed messages to a fixed webhook endpoint.
type Client struct {
	webhookURL     string
	username       string
	avatarURL      string
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new webhook client.
func NewClient(webhookURL, username, avatarURL string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	u, err := url.Parse(webhookURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid webhook URL %q", webhookURL)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		webhookURL:     webhookURL,
		username:       username,
		avatarURL:      avatarURL,
		httpClient:     &http.Client{Timeout: 15 * time.Second},
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// Embed is a Discord rich embed.
type Embed struct {
	Title     string     `json:"title,omitempty"`
	Color     int        `json:"color,omitempty"`
	Thumbnail *Thumbnail `json:"thumbnail,omitempty"`
	Fields    []Field    `json:"fields,omitempty"`
	Footer    *Footer    `json:"footer,omitempty"`
	Timestamp string     `json:"timestamp,omitempty"`
}

// Field is a titled value block inside an embed.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Thumbnail is the small image shown beside an embed.
type Thumbnail struct {
	URL string `json:"url"`
}

// Footer is the small trailing line of an embed.
type Footer struct {
	Text string `json:"text"`
}

type payload struct {
	Username  string  `json:"username,omitempty"`
	AvatarURL string  `json:"avatar_url,omitempty"`
	Embeds    []Embed `json:"embeds"`
}

// SendPurchase sends a purchase notification embed for the transaction.
func (c *Client) SendPurchase(tx models.Transaction, profile *models.Profile, product models.Product) error {
	embed := Embed{
		Title:     "🛒 New Transaction Detected",
		Color:     product.ColorInt(),
		Thumbnail: &Thumbnail{URL: profile.AvatarURL},
		Fields: []Field{
			{
				Name: "👤 Customer Information",
				Value: fmt.Sprintf("**Username:** %s\n**Display Name:** %s\n**User ID:** %d",
					profile.Username, profile.DisplayName, profile.UserID),
				Inline: true,
			},
			{
				Name: "📦 Purchase Details",
				Value: fmt.Sprintf("**Product:** %s\n**Type:** %s\n**Product ID:** %d",
					product.Name, product.Type, product.ID),
				Inline: true,
			},
			{
				Name: "📅 Account Information",
				Value: fmt.Sprintf("**Account Created:** %s\n**Account Age:** %d days",
					profile.JoinDate.Format("January 2, 2006"), profile.AccountAgeDays),
			},
			{
				Name:  "🕒 Transaction Time",
				Value: fmt.Sprintf("<t:%d:F>", tx.Created.Unix()),
			},
		},
		Footer:    &Footer{Text: "Transaction ID: " + tx.Key()},
		Timestamp: tx.Created.UTC().Format(time.RFC3339),
	}

	if product.Ranked() {
		embed.Fields = append(embed.Fields, Field{
			Name:  "⚡ Auto-Ranking Status",
			Value: fmt.Sprintf("**Target Rank:** %d\n**Status:** Processing...", product.Rank),
		})
	}

	return c.send(embed)
}

// SendError sends an operator alert for a failed poll cycle.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(cycleErr error) error {
	return c.send(Embed{
		Title:     "⚠️ Polling error",
		Color:     0xE74C3C,
		Fields:    []Field{{Name: "Error", Value: cycleErr.Error()}},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// SendRecovery sends an operator alert after consecutive failures end.
func (c *Client) SendRecovery(failureCount int) error {
	return c.send(Embed{
		Title:     "✅ Polling recovered",
		Color:     0x2ECC71,
		Fields:    []Field{{Name: "Consecutive failures", Value: fmt.Sprintf("%d", failureCount)}},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// send posts the embed with linear-backoff retry. Success is any 2xx.
func (c *Client) send(embed Embed) error {
	body, err := json.Marshal(payload{
		Username:  c.username,
		AvatarURL: c.avatarURL,
		Embeds:    []Embed{embed},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if i > 0 {
			time.Sleep(c.retryDelayBase * time.Duration(i))
		}
		lastErr = c.post(body)
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

func (c *Client) post(body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook rejected with status %d", resp.StatusCode)
	}
	return nil
}
