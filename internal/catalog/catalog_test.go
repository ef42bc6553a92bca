package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

const testCatalog = `
products:
  - id: 100
    name: "Plus Membership"
    type: Asset
    rank: 5
    color: "#CD7F32"
  - id: 200
    name: "Gold Tier Access"
    type: GamePass
    rank: 10
    color: "#FFD700"
  - id: 300
    name: "Premium T-Shirt"
    type: Asset
    color: "#3498db"
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAndLookup(t *testing.T) {
	c, err := Load(writeCatalog(t, testCatalog))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}

	p, ok := c.Lookup(100)
	if !ok {
		t.Fatal("Lookup(100) not found")
	}
	if p.Name != "Plus Membership" || p.Rank != 5 {
		t.Errorf("unexpected product: %+v", p)
	}

	if _, ok := c.Lookup(999); ok {
		t.Error("Lookup(999) should not be found")
	}

	// Tracking-only product resolves but carries no rank
	p, ok = c.Lookup(300)
	if !ok {
		t.Fatal("Lookup(300) not found")
	}
	if p.Ranked() {
		t.Error("tracking-only product should not be ranked")
	}
}

func TestRankBearing(t *testing.T) {
	c, err := Load(writeCatalog(t, testCatalog))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ranked := c.RankBearing()
	if len(ranked) != 2 {
		t.Fatalf("RankBearing() returned %d products, want 2", len(ranked))
	}
	// Catalog order preserved
	if ranked[0].ID != 100 || ranked[1].ID != 200 {
		t.Errorf("unexpected order: %d, %d", ranked[0].ID, ranked[1].ID)
	}
}

func TestLoadRejectsDuplicateIDs(t *testing.T) {
	content := `
products:
  - id: 100
    name: "A"
    type: Asset
  - id: 100
    name: "B"
    type: Asset
`
	if _, err := Load(writeCatalog(t, content)); err == nil {
		t.Error("expected error for duplicate product IDs")
	}
}

func TestLoadRejectsInvalidProduct(t *testing.T) {
	content := `
products:
  - id: 100
    name: ""
    type: Asset
`
	if _, err := Load(writeCatalog(t, content)); err == nil {
		t.Error("expected error for invalid product")
	}
}

func TestLoadRejectsEmptyCatalog(t *testing.T) {
	if _, err := Load(writeCatalog(t, "products: []\n")); err == nil {
		t.Error("expected error for empty catalog")
	}
}

func TestReloadKeepsOldSnapshotOnError(t *testing.T) {
	path := writeCatalog(t, testCatalog)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := os.WriteFile(path, []byte("products: [{id: -1, name: bad, type: Nope}]"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.Reload(); err == nil {
		t.Fatal("expected reload error for invalid catalog")
	}

	// Old snapshot still serves lookups
	if c.Len() != 3 {
		t.Errorf("Len() after failed reload = %d, want 3", c.Len())
	}
	if _, ok := c.Lookup(100); !ok {
		t.Error("Lookup(100) should still succeed after failed reload")
	}
}

func TestReloadSwapsSnapshot(t *testing.T) {
	path := writeCatalog(t, testCatalog)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	updated := `
products:
  - id: 400
    name: "VIP Badge"
    type: Badge
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
	if _, ok := c.Lookup(400); !ok {
		t.Error("Lookup(400) should succeed after reload")
	}
	if _, ok := c.Lookup(100); ok {
		t.Error("Lookup(100) should fail after reload")
	}
}
