// Package roblox provides an authenticated client for the Roblox platform
// APIs used by the ranking system: users, groups, economy, inventory, and
// thumbnails.
package roblox

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

const csrfHeader = "X-CSRF-TOKEN"

// Config holds client tuning parameters.
type Config struct {
	UsersAPIURL      string
	GroupsAPIURL     string
	EconomyAPIURL    string
	InventoryAPIURL  string
	ThumbnailsAPIURL string
	Cookie           string
	Timeout          time.Duration
	MaxRetries       int
	RetryDelayBase   time.Duration
	PageLimit        int
}

// Client provides access to the Roblox platform APIs.
type Client struct {
	cfg        Config
	httpClient *http.Client
	csrfToken  string
}

// NewClient creates a new Roblox client.
func NewClient(cfg Config) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 100
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// AuthenticatedUser is the account the configured cookie belongs to.
type AuthenticatedUser struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// Authenticate validates the configured cookie and returns the bot account.
func (c *Client) Authenticate(ctx context.Context) (*AuthenticatedUser, error) {
	var user AuthenticatedUser
	if err := c.getJSON(ctx, c.cfg.UsersAPIURL+"/v1/users/authenticated", &user); err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	return &user, nil
}

type userInfoResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName"`
	Created     time.Time `json:"created"`
}

type thumbnailResponse struct {
	Data []struct {
		TargetID int64  `json:"targetId"`
		State    string `json:"state"`
		ImageURL string `json:"imageUrl"`
	} `json:"data"`
}

// GetProfile fetches a user's public profile and headshot thumbnail.
func (c *Client) GetProfile(ctx context.Context, userID int64) (*models.Profile, error) {
	var info userInfoResponse
	if err := c.getJSON(ctx, fmt.Sprintf("%s/v1/users/%d", c.cfg.UsersAPIURL, userID), &info); err != nil {
		return nil, fmt.Errorf("failed to fetch user %d: %w", userID, err)
	}

	profile := &models.Profile{
		UserID:         userID,
		Username:       info.Name,
		DisplayName:    info.DisplayName,
		JoinDate:       info.Created,
		AccountAgeDays: int(time.Since(info.Created).Hours() / 24),
		AvatarURL:      models.FallbackAvatarURL(userID),
	}

	// Thumbnail failure degrades to the fallback URL rather than failing
	// the whole profile fetch.
	thumbURL := fmt.Sprintf("%s/v1/users/avatar-headshot?userIds=%d&size=420x420&format=Png&isCircular=false",
		c.cfg.ThumbnailsAPIURL, userID)
	var thumbs thumbnailResponse
	if err := c.getJSON(ctx, thumbURL, &thumbs); err == nil {
		if len(thumbs.Data) > 0 && thumbs.Data[0].ImageURL != "" {
			profile.AvatarURL = thumbs.Data[0].ImageURL
		}
	}

	return profile, nil
}

type inventoryResponse struct {
	Data []struct {
		AssetID int64 `json:"assetId"`
	} `json:"data"`
	NextPageCursor string `json:"nextPageCursor"`
}

// GetInventory fetches the asset IDs a user owns in the given category,
// following page cursors.
func (c *Client) GetInventory(ctx context.Context, userID int64, assetType string) ([]int64, error) {
	var owned []int64
	cursor := ""
	for {
		u, err := url.Parse(fmt.Sprintf("%s/v2/users/%d/inventory", c.cfg.InventoryAPIURL, userID))
		if err != nil {
			return nil, fmt.Errorf("failed to parse URL: %w", err)
		}
		q := u.Query()
		q.Set("assetTypes", assetType)
		q.Set("limit", fmt.Sprintf("%d", c.cfg.PageLimit))
		q.Set("sortOrder", "Desc")
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		u.RawQuery = q.Encode()

		var page inventoryResponse
		if err := c.getJSON(ctx, u.String(), &page); err != nil {
			return nil, fmt.Errorf("failed to fetch inventory for user %d: %w", userID, err)
		}
		for _, item := range page.Data {
			owned = append(owned, item.AssetID)
		}
		if page.NextPageCursor == "" {
			break
		}
		cursor = page.NextPageCursor
	}
	return owned, nil
}

type userGroupsResponse struct {
	Data []struct {
		Group struct {
			ID int64 `json:"id"`
		} `json:"group"`
		Role struct {
			Rank int `json:"rank"`
		} `json:"role"`
	} `json:"data"`
}

// GetRankInGroup returns the user's current rank in the group, or 0 when
// the user is not a member.
func (c *Client) GetRankInGroup(ctx context.Context, groupID, userID int64) (int, error) {
	var groups userGroupsResponse
	u := fmt.Sprintf("%s/v1/users/%d/groups/roles", c.cfg.GroupsAPIURL, userID)
	if err := c.getJSON(ctx, u, &groups); err != nil {
		return 0, fmt.Errorf("failed to fetch groups for user %d: %w", userID, err)
	}
	for _, g := range groups.Data {
		if g.Group.ID == groupID {
			return g.Role.Rank, nil
		}
	}
	return 0, nil
}

type groupRolesResponse struct {
	Roles []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
		Rank int    `json:"rank"`
	} `json:"roles"`
}

// SetRank assigns the user the group role matching rank.
func (c *Client) SetRank(ctx context.Context, groupID, userID int64, rank int) error {
	var roles groupRolesResponse
	rolesURL := fmt.Sprintf("%s/v1/groups/%d/roles", c.cfg.GroupsAPIURL, groupID)
	if err := c.getJSON(ctx, rolesURL, &roles); err != nil {
		return fmt.Errorf("failed to fetch roles for group %d: %w", groupID, err)
	}

	var roleID int64
	for _, r := range roles.Roles {
		if r.Rank == rank {
			roleID = r.ID
			break
		}
	}
	if roleID == 0 {
		return fmt.Errorf("group %d has no role with rank %d", groupID, rank)
	}

	body, err := json.Marshal(map[string]int64{"roleId": roleID})
	if err != nil {
		return fmt.Errorf("failed to marshal role payload: %w", err)
	}
	patchURL := fmt.Sprintf("%s/v1/groups/%d/users/%d", c.cfg.GroupsAPIURL, groupID, userID)
	resp, err := c.doRequest(ctx, http.MethodPatch, patchURL, body)
	if err != nil {
		return fmt.Errorf("failed to set rank for user %d: %w", userID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("set rank rejected with status %d", resp.StatusCode)
	}
	return nil
}

type groupMembersResponse struct {
	Data []struct {
		User struct {
			UserID   int64  `json:"userId"`
			Username string `json:"username"`
		} `json:"user"`
		Role struct {
			Rank int `json:"rank"`
		} `json:"role"`
	} `json:"data"`
	NextPageCursor string `json:"nextPageCursor"`
}

// GetGroupMembers fetches the full member list, following page cursors.
func (c *Client) GetGroupMembers(ctx context.Context, groupID int64) ([]models.Member, error) {
	var members []models.Member
	cursor := ""
	for {
		u, err := url.Parse(fmt.Sprintf("%s/v1/groups/%d/users", c.cfg.GroupsAPIURL, groupID))
		if err != nil {
			return nil, fmt.Errorf("failed to parse URL: %w", err)
		}
		q := u.Query()
		q.Set("limit", fmt.Sprintf("%d", c.cfg.PageLimit))
		q.Set("sortOrder", "Asc")
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		u.RawQuery = q.Encode()

		var page groupMembersResponse
		if err := c.getJSON(ctx, u.String(), &page); err != nil {
			return nil, fmt.Errorf("failed to fetch members of group %d: %w", groupID, err)
		}
		for _, m := range page.Data {
			members = append(members, models.Member{
				UserID:   m.User.UserID,
				Username: m.User.Username,
				Rank:     m.Role.Rank,
			})
		}
		if page.NextPageCursor == "" {
			break
		}
		cursor = page.NextPageCursor
	}
	return members, nil
}

type transactionsResponse struct {
	Data []struct {
		Created time.Time `json:"created"`
		Agent   struct {
			ID   int64  `json:"id"`
			Type string `json:"type"`
		} `json:"agent"`
		Details *struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"details"`
		Currency struct {
			Amount float64 `json:"amount"`
			Type   string  `json:"type"`
		} `json:"currency"`
	} `json:"data"`
}

// GetGroupTransactions fetches the group's recent sale transactions filtered
// by product category. Entries without an item reference are dropped.
func (c *Client) GetGroupTransactions(ctx context.Context, groupID int64, category string) ([]models.Transaction, error) {
	u, err := url.Parse(fmt.Sprintf("%s/v2/groups/%d/transactions", c.cfg.EconomyAPIURL, groupID))
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	q := u.Query()
	q.Set("transactionType", "Sale")
	q.Set("limit", fmt.Sprintf("%d", c.cfg.PageLimit))
	u.RawQuery = q.Encode()

	var feed transactionsResponse
	if err := c.getJSON(ctx, u.String(), &feed); err != nil {
		return nil, fmt.Errorf("failed to fetch transactions for group %d: %w", groupID, err)
	}

	var txs []models.Transaction
	for _, entry := range feed.Data {
		if entry.Details == nil || entry.Details.ID == 0 {
			continue
		}
		if category != "" && entry.Details.Type != category {
			continue
		}
		txs = append(txs, models.Transaction{
			UserID:   entry.Agent.ID,
			Item:     models.Item{ID: entry.Details.ID, Name: entry.Details.Name},
			Created:  entry.Created,
			Amount:   entry.Currency.Amount,
			Currency: entry.Currency.Type,
		})
	}
	return txs, nil
}

func (c *Client) getJSON(ctx context.Context, urlStr string, out interface{}) error {
	resp, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// doRequest performs an HTTP request with cookie auth, CSRF token handling,
// and linear-backoff retry on transport errors, 429, and 5xx.
func (c *Client) doRequest(ctx context.Context, method, urlStr string, body []byte) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.cfg.MaxRetries; i++ {
		if i > 0 {
			if err := sleepCtx(ctx, c.cfg.RetryDelayBase*time.Duration(i)); err != nil {
				return nil, err
			}
		}

		resp, err := c.send(ctx, method, urlStr, body)
		if err != nil {
			lastErr = err
			continue
		}

		// Mutating endpoints reject the first call with 403 and a fresh
		// CSRF token in the response header.
		if resp.StatusCode == http.StatusForbidden {
			if token := resp.Header.Get(csrfHeader); token != "" {
				resp.Body.Close()
				c.csrfToken = token
				resp, err = c.send(ctx, method, urlStr, body)
				if err != nil {
					lastErr = err
					continue
				}
			}
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			io.Copy(io.Discard, resp.Body) //nolint:errcheck
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) send(ctx context.Context, method, urlStr string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, urlStr, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Cookie != "" {
		req.AddCookie(&http.Cookie{Name: ".ROBLOSECURITY", Value: c.cfg.Cookie})
	}
	if c.csrfToken != "" {
		req.Header.Set(csrfHeader, c.csrfToken)
	}
	return c.httpClient.Do(req)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
