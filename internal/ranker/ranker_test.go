package ranker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AiryPlays/roblox-ranking-system/internal/catalog"
	"github.com/AiryPlays/roblox-ranking-system/internal/dedup"
	"github.com/AiryPlays/roblox-ranking-system/internal/metrics"
	"github.com/AiryPlays/roblox-ranking-system/internal/models"
)

const testGroupID = int64(222)

// Catalog: product A (id=100, rank=5), product B (id=200, rank=10),
// product C (id=300, tracking-only).
const testCatalogYAML = `
products:
  - id: 100
    name: "Plus Membership"
    type: GamePass
    rank: 5
  - id: 200
    name: "Gold Tier Access"
    type: GamePass
    rank: 10
  - id: 300
    name: "Premium T-Shirt"
    type: Asset
`

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products.yaml")
	if err := os.WriteFile(path, []byte(testCatalogYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := catalog.Load(path)
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	return c
}

type setRankCall struct {
	userID int64
	rank   int
}

type fakeAPI struct {
	profiles       map[int64]*models.Profile
	profileErr     error
	inventory      map[int64][]int64
	inventoryErr   error
	inventoryCalls int
	ranks          map[int64]int
	rankErr        error
	setRankErr     error
	setRankCalls   []setRankCall
	members        []models.Member
	membersErr     error
}

func (f *fakeAPI) GetProfile(_ context.Context, userID int64) (*models.Profile, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	if p, ok := f.profiles[userID]; ok {
		return p, nil
	}
	return &models.Profile{UserID: userID, Username: "user", JoinDate: time.Now()}, nil
}

func (f *fakeAPI) GetInventory(_ context.Context, userID int64, _ string) ([]int64, error) {
	f.inventoryCalls++
	if f.inventoryErr != nil {
		return nil, f.inventoryErr
	}
	return f.inventory[userID], nil
}

func (f *fakeAPI) GetRankInGroup(_ context.Context, _, userID int64) (int, error) {
	if f.rankErr != nil {
		return 0, f.rankErr
	}
	return f.ranks[userID], nil
}

func (f *fakeAPI) SetRank(_ context.Context, _, userID int64, rank int) error {
	if f.setRankErr != nil {
		return f.setRankErr
	}
	f.setRankCalls = append(f.setRankCalls, setRankCall{userID: userID, rank: rank})
	return nil
}

func (f *fakeAPI) GetGroupMembers(_ context.Context, _ int64) ([]models.Member, error) {
	if f.membersErr != nil {
		return nil, f.membersErr
	}
	return f.members, nil
}

type sentNotification struct {
	tx      models.Transaction
	profile *models.Profile
	product models.Product
}

type fakeNotifier struct {
	sent []sentNotification
	err  error
}

func (f *fakeNotifier) SendPurchase(tx models.Transaction, profile *models.Profile, product models.Product) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentNotification{tx: tx, profile: profile, product: product})
	return nil
}

func newTestRanker(t *testing.T, api *fakeAPI, notifier *fakeNotifier) (*Ranker, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	var n Notifier
	if notifier != nil {
		n = notifier
	}
	r := New(api, n, newTestCatalog(t), dedup.New(2000), m, Config{
		GroupID:             testGroupID,
		InventoryCategories: []string{models.TypeGamePass},
	})
	return r, m
}

func testTx(userID, itemID int64) models.Transaction {
	return models.Transaction{
		UserID:  userID,
		Item:    models.Item{ID: itemID},
		Created: time.Unix(1700000000, 0),
	}
}

func TestResolveEligibleRank(t *testing.T) {
	tests := []struct {
		name  string
		owned []int64
		want  int
	}{
		{"owns nothing", nil, 0},
		{"owns product A", []int64{100}, 5},
		{"owns A and tracking-only C", []int64{100, 300}, 5},
		{"owns A and B", []int64{100, 200}, 10},
		{"owns only untracked assets", []int64{999}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{inventory: map[int64][]int64{7: tt.owned}}
			r, _ := newTestRanker(t, api, nil)
			if got := r.ResolveEligibleRank(context.Background(), 7); got != tt.want {
				t.Errorf("ResolveEligibleRank() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestResolveEligibleRank_Monotonic(t *testing.T) {
	// Growing the owned set never lowers the resolved rank.
	owned := []int64{}
	prev := 0
	for _, add := range []int64{300, 100, 999, 200} {
		owned = append(owned, add)
		api := &fakeAPI{inventory: map[int64][]int64{7: owned}}
		r, _ := newTestRanker(t, api, nil)
		got := r.ResolveEligibleRank(context.Background(), 7)
		if got < prev {
			t.Errorf("rank decreased from %d to %d after adding %d", prev, got, add)
		}
		prev = got
	}
}

func TestResolveEligibleRank_FetchFailure(t *testing.T) {
	api := &fakeAPI{inventoryErr: errors.New("rate limited")}
	r, m := newTestRanker(t, api, nil)

	if got := r.ResolveEligibleRank(context.Background(), 7); got != 0 {
		t.Errorf("ResolveEligibleRank() = %d, want 0 on fetch failure", got)
	}
	if m.Snapshot().Errors != 1 {
		t.Errorf("Errors = %d, want 1", m.Snapshot().Errors)
	}
}

func TestProcess_DedupIdempotence(t *testing.T) {
	api := &fakeAPI{
		inventory: map[int64][]int64{7: {100}},
		ranks:     map[int64]int{7: 1},
	}
	notifier := &fakeNotifier{}
	r, m := newTestRanker(t, api, notifier)

	tx := testTx(7, 100)
	r.Process(context.Background(), tx)
	r.Process(context.Background(), tx)

	if len(notifier.sent) != 1 {
		t.Errorf("got %d notifications, want 1", len(notifier.sent))
	}
	if len(api.setRankCalls) != 1 {
		t.Errorf("got %d rank assignments, want 1", len(api.setRankCalls))
	}
	if api.setRankCalls[0].rank != 5 {
		t.Errorf("assigned rank %d, want 5", api.setRankCalls[0].rank)
	}
	snap := m.Snapshot()
	if snap.TransactionsProcessed != 1 {
		t.Errorf("TransactionsProcessed = %d, want 1", snap.TransactionsProcessed)
	}
	if snap.RankingsExecuted != 1 {
		t.Errorf("RankingsExecuted = %d, want 1", snap.RankingsExecuted)
	}
	if snap.NotificationsSent != 1 {
		t.Errorf("NotificationsSent = %d, want 1", snap.NotificationsSent)
	}
}

func TestProcess_UntrackedProductNoOp(t *testing.T) {
	api := &fakeAPI{}
	notifier := &fakeNotifier{}
	r, m := newTestRanker(t, api, notifier)

	r.Process(context.Background(), testTx(7, 999))

	if len(notifier.sent) != 0 {
		t.Error("untracked product must not notify")
	}
	if len(api.setRankCalls) != 0 {
		t.Error("untracked product must not rank")
	}
	// Not recorded as processed: it was never handled.
	if r.DedupSize() != 0 {
		t.Errorf("DedupSize = %d, want 0", r.DedupSize())
	}
	snap := m.Snapshot()
	if snap.TransactionsProcessed != 0 {
		t.Errorf("TransactionsProcessed = %d, want 0", snap.TransactionsProcessed)
	}
}

func TestProcess_TrackingOnlyProductSkipsRanking(t *testing.T) {
	api := &fakeAPI{inventory: map[int64][]int64{7: {100, 300}}}
	notifier := &fakeNotifier{}
	r, m := newTestRanker(t, api, notifier)

	r.Process(context.Background(), testTx(7, 300))

	if len(notifier.sent) != 1 {
		t.Errorf("got %d notifications, want 1", len(notifier.sent))
	}
	if api.inventoryCalls != 0 {
		t.Error("tracking-only purchase should not trigger an eligibility fetch")
	}
	if len(api.setRankCalls) != 0 {
		t.Error("tracking-only purchase must not rank")
	}
	if m.Snapshot().TransactionsProcessed != 1 {
		t.Error("tracking-only purchase still counts as processed")
	}
}

func TestProcess_InventoryFailureStillNotifies(t *testing.T) {
	api := &fakeAPI{inventoryErr: errors.New("inventory down")}
	notifier := &fakeNotifier{}
	r, m := newTestRanker(t, api, notifier)

	r.Process(context.Background(), testTx(7, 100))

	if len(notifier.sent) != 1 {
		t.Error("notification for the triggering purchase must still be sent")
	}
	if len(api.setRankCalls) != 0 {
		t.Error("no rank assignment may be issued when eligibility resolves to 0")
	}
	// Transaction still recorded as processed.
	if r.DedupSize() != 1 {
		t.Errorf("DedupSize = %d, want 1", r.DedupSize())
	}
	if m.Snapshot().TransactionsProcessed != 1 {
		t.Error("transaction should count as processed despite ranking failure")
	}
}

func TestProcess_ProfileFailureUsesPlaceholder(t *testing.T) {
	api := &fakeAPI{
		profileErr: errors.New("profile service down"),
		inventory:  map[int64][]int64{7: {100}},
	}
	notifier := &fakeNotifier{}
	r, m := newTestRanker(t, api, notifier)

	r.Process(context.Background(), testTx(7, 100))

	if len(notifier.sent) != 1 {
		t.Fatal("notification must still be sent with placeholder profile")
	}
	got := notifier.sent[0].profile
	if got.Username != "Unknown User" {
		t.Errorf("Username = %q, want placeholder", got.Username)
	}
	if got.UserID != 7 {
		t.Errorf("UserID = %d, want 7", got.UserID)
	}
	if m.Snapshot().Errors == 0 {
		t.Error("profile failure should be counted")
	}
}

func TestProcess_NotificationFailureStillRanks(t *testing.T) {
	api := &fakeAPI{
		inventory: map[int64][]int64{7: {100}},
		ranks:     map[int64]int{7: 1},
	}
	notifier := &fakeNotifier{err: errors.New("webhook 500")}
	r, m := newTestRanker(t, api, notifier)

	r.Process(context.Background(), testTx(7, 100))

	if len(api.setRankCalls) != 1 {
		t.Error("ranking must proceed despite notification failure")
	}
	snap := m.Snapshot()
	if snap.NotificationsSent != 0 {
		t.Errorf("NotificationsSent = %d, want 0", snap.NotificationsSent)
	}
	if snap.Errors == 0 {
		t.Error("notification failure should be counted")
	}
	if snap.TransactionsProcessed != 1 {
		t.Error("transaction should still count as processed")
	}
}

func TestProcess_AlreadyAtTargetRank(t *testing.T) {
	api := &fakeAPI{
		inventory: map[int64][]int64{7: {100}},
		ranks:     map[int64]int{7: 5},
	}
	r, m := newTestRanker(t, api, &fakeNotifier{})

	r.Process(context.Background(), testTx(7, 100))

	if len(api.setRankCalls) != 0 {
		t.Error("no assignment when the user already holds the eligible rank")
	}
	if m.Snapshot().RankingsExecuted != 0 {
		t.Error("RankingsExecuted should stay 0")
	}
}

func TestProcess_NilNotifier(t *testing.T) {
	api := &fakeAPI{
		inventory: map[int64][]int64{7: {100}},
	}
	r, m := newTestRanker(t, api, nil)

	r.Process(context.Background(), testTx(7, 100))

	if len(api.setRankCalls) != 1 {
		t.Error("ranking should proceed with notifications disabled")
	}
	if m.Snapshot().TransactionsProcessed != 1 {
		t.Error("transaction should count as processed")
	}
}

func TestRunInitialScan(t *testing.T) {
	api := &fakeAPI{
		members: []models.Member{
			{UserID: 1, Username: "needs-promotion", Rank: 1}, // owns B, at 1
			{UserID: 2, Username: "already-correct", Rank: 5}, // owns A, at 5
			{UserID: 3, Username: "owns-nothing", Rank: 1},
		},
		inventory: map[int64][]int64{1: {200}, 2: {100}},
		ranks:     map[int64]int{1: 1, 2: 5, 3: 1},
	}
	r, _ := newTestRanker(t, api, nil)

	if err := r.RunInitialScan(context.Background()); err != nil {
		t.Fatalf("RunInitialScan: %v", err)
	}

	if len(api.setRankCalls) != 1 {
		t.Fatalf("got %d assignments, want 1", len(api.setRankCalls))
	}
	if api.setRankCalls[0].userID != 1 || api.setRankCalls[0].rank != 10 {
		t.Errorf("unexpected assignment: %+v", api.setRankCalls[0])
	}
}

func TestRunInitialScan_ContinuesOnMemberErrors(t *testing.T) {
	// Rank reads fail for everyone, but the scan still visits each member.
	api := &fakeAPI{
		members: []models.Member{
			{UserID: 1, Rank: 1},
			{UserID: 2, Rank: 1},
		},
		inventory: map[int64][]int64{1: {100}, 2: {100}},
		rankErr:   errors.New("rank read failed"),
	}
	r, m := newTestRanker(t, api, nil)

	if err := r.RunInitialScan(context.Background()); err != nil {
		t.Fatalf("RunInitialScan: %v", err)
	}
	if m.Snapshot().Errors != 2 {
		t.Errorf("Errors = %d, want 2 (one per member)", m.Snapshot().Errors)
	}
}

func TestRunInitialScan_MemberListFailure(t *testing.T) {
	api := &fakeAPI{membersErr: errors.New("members endpoint down")}
	r, m := newTestRanker(t, api, nil)

	if err := r.RunInitialScan(context.Background()); err == nil {
		t.Error("expected error when member list fetch fails")
	}
	if m.Snapshot().Errors != 1 {
		t.Errorf("Errors = %d, want 1", m.Snapshot().Errors)
	}
}

func TestRunInitialScan_Cancellation(t *testing.T) {
	api := &fakeAPI{
		members:   []models.Member{{UserID: 1, Rank: 1}, {UserID: 2, Rank: 1}},
		inventory: map[int64][]int64{},
	}
	r, _ := newTestRanker(t, api, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.RunInitialScan(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
