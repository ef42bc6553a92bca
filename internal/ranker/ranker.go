// Package ranker implements the core transaction processing: deduplication,
// rank-eligibility resolution, and rank assignment orchestration.
package ranker

import (
	"context"
	"time"

	"github.com/AiryPlays/roblox-ranking-system/internal/catalog"
	"github.com/AiryPlays/roblox-ranking-system/internal/dedup"
	"github.com/AiryPlays/roblox-ranking-system/internal/logger"
	"github.com/AiryPlays/roblox-ranking-system/internal/metrics"
	"github.com/AiryPlays/roblox-ranking-system/internal/models"
)

// GroupAPI is the subset of the platform client the ranker depends on.
type GroupAPI interface {
	GetProfile(ctx context.Context, userID int64) (*models.Profile, error)
	GetInventory(ctx context.Context, userID int64, assetType string) ([]int64, error)
	GetRankInGroup(ctx context.Context, groupID, userID int64) (int, error)
	SetRank(ctx context.Context, groupID, userID int64, rank int) error
	GetGroupMembers(ctx context.Context, groupID int64) ([]models.Member, error)
}

// Notifier delivers purchase notifications.
type Notifier interface {
	SendPurchase(tx models.Transaction, profile *models.Profile, product models.Product) error
}

// Config holds ranker behavior configuration.
type Config struct {
	GroupID int64
	// InventoryCategories are the asset types consulted when resolving
	// rank eligibility.
	InventoryCategories []string
	// MemberDelay paces the initial scan to respect platform rate limits.
	MemberDelay time.Duration
}

// Ranker owns the dedup store and metrics and orchestrates per-transaction
// side effects.
type Ranker struct {
	api      GroupAPI
	notifier Notifier // nil when notifications are disabled
	catalog  *catalog.Catalog
	seen     *dedup.Store
	metrics  *metrics.Metrics
	cfg      Config

	logTx   *logger.Logger
	logRank *logger.Logger
	logScan *logger.Logger
}

// New creates a Ranker.
func New(api GroupAPI, notifier Notifier, cat *catalog.Catalog, seen *dedup.Store, m *metrics.Metrics, cfg Config) *Ranker {
	if len(cfg.InventoryCategories) == 0 {
		cfg.InventoryCategories = []string{models.TypeGamePass}
	}
	return &Ranker{
		api:      api,
		notifier: notifier,
		catalog:  cat,
		seen:     seen,
		metrics:  m,
		cfg:      cfg,
		logTx:    logger.For("transaction"),
		logRank:  logger.For("ranking"),
		logScan:  logger.For("scan"),
	}
}

// ResolveEligibleRank computes the highest rank among rank-bearing catalog
// products the user owns, from a fresh inventory snapshot. Returns 0 when
// the user owns no rank-bearing products or when the inventory fetch fails;
// callers must treat 0 as "no change requested", never as a demotion.
func (r *Ranker) ResolveEligibleRank(ctx context.Context, userID int64) int {
	owned := make(map[int64]bool)
	for _, category := range r.cfg.InventoryCategories {
		ids, err := r.api.GetInventory(ctx, userID, category)
		if err != nil {
			r.logRank.Errorf("failed to fetch %s inventory for user %d: %v", category, userID, err)
			r.metrics.IncErrors()
			return 0
		}
		for _, id := range ids {
			owned[id] = true
		}
	}

	highest := 0
	for _, p := range r.catalog.RankBearing() {
		if owned[p.ID] && p.Rank > highest {
			highest = p.Rank
		}
	}
	return highest
}

// Process handles one transaction. Idempotent per dedup key: reprocessing a
// seen transaction is a silent no-op, as is a purchase of a product outside
// the catalog.
func (r *Ranker) Process(ctx context.Context, tx models.Transaction) {
	key := tx.Key()
	if r.seen.Has(key) {
		return
	}

	product, ok := r.catalog.Lookup(tx.Item.ID)
	if !ok {
		return
	}

	r.logTx.Infof("new transaction detected: %s - user %d", product.Name, tx.UserID)

	profile, err := r.api.GetProfile(ctx, tx.UserID)
	if err != nil {
		r.logTx.Errorf("failed to retrieve profile for user %d: %v", tx.UserID, err)
		r.metrics.IncErrors()
		profile = models.PlaceholderProfile(tx.UserID)
	}

	if r.notifier != nil {
		if err := r.notifier.SendPurchase(tx, profile, product); err != nil {
			r.logTx.Errorf("notification failed for user %d: %v", tx.UserID, err)
			r.metrics.IncErrors()
		} else {
			r.logTx.Infof("notification sent: %s - user %s", product.Name, profile.Username)
			r.metrics.IncNotificationsSent()
		}
	}

	if product.Ranked() {
		if eligible := r.ResolveEligibleRank(ctx, tx.UserID); eligible > 0 {
			r.assignRank(ctx, tx.UserID, eligible, product.Name)
		}
	}

	// Recorded regardless of notification or ranking outcome: the
	// transaction itself was handled.
	r.seen.Add(key)
	r.metrics.IncTransactionsProcessed()
}

// assignRank sets the user's group rank to target unless they already hold
// it. Reports whether an assignment was executed.
func (r *Ranker) assignRank(ctx context.Context, userID int64, target int, reason string) bool {
	current, err := r.api.GetRankInGroup(ctx, r.cfg.GroupID, userID)
	if err != nil {
		r.logRank.Errorf("failed to read rank for user %d: %v", userID, err)
		r.metrics.IncErrors()
		return false
	}
	if current == target {
		r.logRank.Infof("user %d already holds rank %d", userID, target)
		return false
	}
	if err := r.api.SetRank(ctx, r.cfg.GroupID, userID, target); err != nil {
		r.logRank.Errorf("failed to rank user %d: %v", userID, err)
		r.metrics.IncErrors()
		return false
	}
	r.logRank.Infof("ranked user %d to rank %d via %s", userID, target, reason)
	r.metrics.IncRankingsExecuted()
	return true
}

// DedupSize returns the number of recorded transaction keys.
func (r *Ranker) DedupSize() int {
	return r.seen.Len()
}
