package store

import (
	"context"
	"strconv"
	"testing"
	"time"

	"civicline/internal/cache"
	"civicline/internal/domain"
)

func loadedDirectory(t *testing.T) (*DirectoryStore, cache.Cache) {
	t.Helper()
	c := testCache(t)
	d := NewDirectoryStore(c)
	d.Now = func() time.Time { return testClock }
	if err := d.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	return d, c
}

func TestDirectoryLoadSeedsRosters(t *testing.T) {
	d, c := loadedDirectory(t)
	if got := len(d.Officials()); got != 2 {
		t.Fatalf("officials = %d, want 2", got)
	}
	if got := len(d.Workers()); got != 2 {
		t.Fatalf("workers = %d, want 2", got)
	}

	// seeds must be persisted so the next Load reads the cache
	var persisted []domain.Identity
	if err := c.Get(context.Background(), cache.KeyOfficials, &persisted); err != nil {
		t.Fatal(err)
	}
	if len(persisted) != 2 || persisted[0].ID != "off-2001" {
		t.Fatalf("persisted officials = %+v", persisted)
	}
}

func TestDirectoryEmptiedRosterStaysEmpty(t *testing.T) {
	d, _ := loadedDirectory(t)
	ctx := context.Background()
	for _, w := range d.Workers() {
		if err := d.DeleteUser(ctx, w.ID, domain.RoleWorker); err != nil {
			t.Fatal(err)
		}
	}

	// a fresh store over the same cache must not resurrect the seeds
	d2 := NewDirectoryStore(d.Cache)
	if err := d2.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if got := len(d2.Workers()); got != 0 {
		t.Fatalf("workers = %d, want 0", got)
	}
	if got := len(d2.Officials()); got != 2 {
		t.Fatalf("officials = %d, want 2", got)
	}
}

func TestDirectoryAddOfficialAndWorker(t *testing.T) {
	d, _ := loadedDirectory(t)
	ctx := context.Background()

	off, err := d.AddOfficial(ctx, NewOfficial{Name: "Nina Rao", Username: "nina.rao", Department: "Water Supply", Designation: "Junior Engineer"})
	if err != nil {
		t.Fatal(err)
	}
	wantID := strconv.FormatInt(testClock.UnixMilli(), 10)
	if off.ID != wantID {
		t.Fatalf("id = %q, want %q", off.ID, wantID)
	}
	if off.Role != domain.RoleOfficial || !off.Verified || off.Status != "active" {
		t.Fatalf("official defaults wrong: %+v", off)
	}

	w, err := d.AddWorker(ctx, NewWorker{Name: "Dev Singh", Username: "dev.singh", Department: "Water Supply"})
	if err != nil {
		t.Fatal(err)
	}
	if w.Role != domain.RoleWorker || w.Status != "available" {
		t.Fatalf("worker defaults wrong: %+v", w)
	}
	if w.Assigned != 0 || w.Completed != 0 {
		t.Fatalf("counters not zeroed: %+v", w)
	}
	if len(d.Officials()) != 3 || len(d.Workers()) != 3 {
		t.Fatalf("rosters = %d/%d, want 3/3", len(d.Officials()), len(d.Workers()))
	}
}

func TestDirectoryUpdateUserSearchesBothRosters(t *testing.T) {
	d, _ := loadedDirectory(t)
	ctx := context.Background()

	dept := "Street Lighting"
	got, err := d.UpdateUser(ctx, "w-3001", IdentityPatch{Department: &dept})
	if err != nil {
		t.Fatal(err)
	}
	if got.Department != "Street Lighting" {
		t.Fatalf("department = %q", got.Department)
	}
	if got.Name != "Mike Johnson" {
		t.Fatalf("unrelated field changed: %+v", got)
	}

	status := "on_leave"
	if _, err := d.UpdateUser(ctx, "off-2002", IdentityPatch{Status: &status}); err != nil {
		t.Fatal(err)
	}

	if _, err := d.UpdateUser(ctx, "no-such-id", IdentityPatch{Status: &status}); err != ErrUserNotFound {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestDirectoryDeleteUserScopedByRole(t *testing.T) {
	d, _ := loadedDirectory(t)
	ctx := context.Background()

	// wrong roster: the worker id is untouched
	if err := d.DeleteUser(ctx, "w-3001", domain.RoleOfficial); err != nil {
		t.Fatal(err)
	}
	if _, ok := d.FindByID("w-3001"); !ok {
		t.Fatal("worker removed through the officials roster")
	}

	if err := d.DeleteUser(ctx, "w-3001", domain.RoleWorker); err != nil {
		t.Fatal(err)
	}
	if _, ok := d.FindByID("w-3001"); ok {
		t.Fatal("worker still present after delete")
	}

	if err := d.DeleteUser(ctx, "off-2001", domain.RoleCitizen); err == nil {
		t.Fatal("expected an error for a role without a roster")
	}
}

func TestDirectoryFindByUsername(t *testing.T) {
	d, _ := loadedDirectory(t)

	got, ok := d.FindByUsername("MIKE.JOHNSON")
	if !ok {
		t.Fatal("case-insensitive lookup failed")
	}
	if got.ID != "w-3001" {
		t.Fatalf("id = %q", got.ID)
	}
	if _, ok := d.FindByUsername("nobody"); ok {
		t.Fatal("unexpected match")
	}
}
