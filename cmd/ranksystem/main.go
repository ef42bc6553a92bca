package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AiryPlays/roblox-ranking-system/internal/catalog"
	"github.com/AiryPlays/roblox-ranking-system/internal/config"
	"github.com/AiryPlays/roblox-ranking-system/internal/dedup"
	"github.com/AiryPlays/roblox-ranking-system/internal/discord"
	"github.com/AiryPlays/roblox-ranking-system/internal/logger"
	"github.com/AiryPlays/roblox-ranking-system/internal/metrics"
	"github.com/AiryPlays/roblox-ranking-system/internal/ranker"
	"github.com/AiryPlays/roblox-ranking-system/internal/roblox"
	"github.com/AiryPlays/roblox-ranking-system/internal/status"
	"github.com/AiryPlays/roblox-ranking-system/internal/storage"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logSys := logger.For("system")
	logPoll := logger.For("poll")
	logSys.Infof("configuration loaded from %s", *configPath)

	store, err := storage.New(cfg.Dedup.Capacity, cfg.Dedup.DBPath)
	if err != nil {
		logSys.Fatalf("failed to initialize dedup journal: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logSys.Errorf("failed to close dedup journal: %v", err)
		}
	}()

	seen := dedup.New(cfg.Dedup.Capacity)
	if keys, err := store.LoadKeys(); err != nil {
		logSys.Warnf("failed to load dedup journal: %v", err)
	} else {
		seen.Warm(keys)
		logSys.Infof("restored %d processed transaction keys", seen.Len())
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		logSys.Fatalf("failed to load product catalog: %v", err)
	}
	logSys.Infof("catalog loaded: %d products (%d rank-bearing)", cat.Len(), len(cat.RankBearing()))

	robloxClient := roblox.NewClient(roblox.Config{
		UsersAPIURL:      cfg.Roblox.UsersAPIURL,
		GroupsAPIURL:     cfg.Roblox.GroupsAPIURL,
		EconomyAPIURL:    cfg.Roblox.EconomyAPIURL,
		InventoryAPIURL:  cfg.Roblox.InventoryAPIURL,
		ThumbnailsAPIURL: cfg.Roblox.ThumbnailsAPIURL,
		Cookie:           cfg.Roblox.Cookie,
		Timeout:          cfg.Roblox.Timeout,
		MaxRetries:       cfg.Roblox.MaxRetries,
		RetryDelayBase:   cfg.Roblox.RetryDelayBase,
		PageLimit:        cfg.Roblox.PageLimit,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	botUser, err := robloxClient.Authenticate(ctx)
	if err != nil {
		logger.For("auth").Fatalf("authentication failed: %v", err)
	}
	logger.For("auth").Infof("authenticated as %s (ID: %d)", botUser.Name, botUser.ID)

	var discordClient *discord.Client
	if cfg.Discord.Enabled {
		discordClient, err = discord.NewClient(
			cfg.Discord.WebhookURL,
			cfg.Discord.Username,
			cfg.Discord.AvatarURL,
			cfg.Discord.MaxRetries,
			cfg.Discord.RetryDelayBase,
		)
		if err != nil {
			logSys.Fatalf("failed to initialize Discord client: %v", err)
		}
		logSys.Infof("Discord webhook client initialized")
	} else {
		logSys.Debugf("Discord notifications disabled")
	}

	m := metrics.New()

	var notifier ranker.Notifier
	if discordClient != nil {
		notifier = discordClient
	}
	rk := ranker.New(robloxClient, notifier, cat, seen, m, ranker.Config{
		GroupID:             cfg.Roblox.GroupID,
		InventoryCategories: cfg.Roblox.InventoryCategories,
		MemberDelay:         cfg.Scan.MemberDelay,
	})

	var statusServer *status.Server
	if cfg.Status.Enabled {
		statusServer = status.NewServer(cfg.Status.ListenAddr, m, seen, cat)
		statusServer.Start()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logSys.Infof("shutdown signal received, cleaning up...")
		cancel()
	}()

	if cfg.Scan.Enabled {
		if err := rk.RunInitialScan(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				shutdown(seen, store, m, statusServer)
				return
			}
			logger.For("scan").Errorf("initial scan failed: %v", err)
		}
	}

	logSys.Infof("transaction monitoring active (interval: %v, categories: %v, dedup capacity: %d)",
		cfg.Roblox.PollInterval, cfg.Roblox.Categories, cfg.Dedup.Capacity)

	pollTicker := time.NewTicker(cfg.Roblox.PollInterval)
	defer pollTicker.Stop()
	reportTicker := time.NewTicker(cfg.Status.ReportInterval)
	defer reportTicker.Stop()

	var refreshC <-chan time.Time
	if cfg.Catalog.RefreshInterval > 0 {
		refreshTicker := time.NewTicker(cfg.Catalog.RefreshInterval)
		defer refreshTicker.Stop()
		refreshC = refreshTicker.C
	}

	consecutiveFailures := 0
	cycleCount := 0

	handleCycleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			m.IncErrors()
			logPoll.Errorf("poll cycle failed: %v", err)
			if consecutiveFailures == 1 && discordClient != nil {
				if sendErr := discordClient.SendError(err); sendErr != nil {
					logPoll.Warnf("failed to send error notification: %v", sendErr)
				}
			}
		} else {
			if consecutiveFailures > 0 && discordClient != nil {
				if sendErr := discordClient.SendRecovery(consecutiveFailures); sendErr != nil {
					logPoll.Warnf("failed to send recovery notification: %v", sendErr)
				}
			}
			consecutiveFailures = 0
		}
	}

	checkpoint := func() {
		if err := store.SaveKeys(seen.Keys()); err != nil {
			logSys.Warnf("failed to checkpoint dedup journal: %v", err)
		}
	}

	logPoll.Debugf("running initial poll cycle")
	handleCycleResult(runPollCycle(ctx, robloxClient, rk, cfg))

	for {
		select {
		case <-ctx.Done():
			shutdown(seen, store, m, statusServer)
			return

		case <-pollTicker.C:
			logPoll.Debugf("starting scheduled poll cycle")
			handleCycleResult(runPollCycle(ctx, robloxClient, rk, cfg))
			cycleCount++
			if cycleCount%cfg.Dedup.CheckpointInterval == 0 {
				checkpoint()
			}

		case <-refreshC:
			if err := cat.Reload(); err != nil {
				logger.For("catalog").Warnf("catalog refresh failed, keeping previous snapshot: %v", err)
				m.IncErrors()
			} else {
				logger.For("catalog").Infof("catalog refreshed: %d products", cat.Len())
			}

		case <-reportTicker.C:
			reportMetrics(m, seen)
		}
	}
}

// runPollCycle fetches each transaction category and processes every entry.
// A panic inside a cycle is contained and surfaced as a cycle error so the
// next scheduled cycle proceeds.
func runPollCycle(ctx context.Context, client *roblox.Client, rk *ranker.Ranker, cfg *config.Config) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poll cycle panic: %v", r)
		}
	}()

	logPoll := logger.For("poll")
	startTime := time.Now()
	var cycleErrs []error

	for _, category := range cfg.Roblox.Categories {
		txs, fetchErr := client.GetGroupTransactions(ctx, cfg.Roblox.GroupID, category)
		if fetchErr != nil {
			cycleErrs = append(cycleErrs, fmt.Errorf("category %s: %w", category, fetchErr))
			continue
		}
		logPoll.Debugf("fetched %d %s transactions", len(txs), category)
		for i := range txs {
			rk.Process(ctx, txs[i])
		}
	}

	logPoll.Debugf("poll cycle completed in %v", time.Since(startTime))
	return errors.Join(cycleErrs...)
}

func reportMetrics(m *metrics.Metrics, seen *dedup.Store) {
	snap := m.Snapshot()
	logger.For("metrics").Infof(
		"transactions_processed=%d rankings_executed=%d notifications_sent=%d errors=%d dedup_size=%d",
		snap.TransactionsProcessed, snap.RankingsExecuted, snap.NotificationsSent, snap.Errors, seen.Len(),
	)
}

func shutdown(seen *dedup.Store, store *storage.Storage, m *metrics.Metrics, statusServer *status.Server) {
	logSys := logger.For("system")
	if err := store.SaveKeys(seen.Keys()); err != nil {
		logSys.Warnf("failed to write final dedup checkpoint: %v", err)
	}
	if statusServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := statusServer.Shutdown(shutdownCtx); err != nil {
			logSys.Warnf("status server shutdown: %v", err)
		}
	}
	reportMetrics(m, seen)
	logSys.Infof("service stopped")
}
