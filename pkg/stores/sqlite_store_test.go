package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "gantry.db")})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func seedMachine(t *testing.T, store *SQLiteStore, id, name string) *Machine {
	t.Helper()
	m := &Machine{
		ID:      id,
		Name:    name,
		Address: "10.0.0.11",
		Labels:  `{"env":"prod"}`,
	}
	if err := store.UpsertMachine(context.Background(), m); err != nil {
		t.Fatalf("upsert machine: %v", err)
	}
	return m
}

func TestSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestSQLiteStore_MachineRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedMachine(t, store, "m-1", "web01")

	got, err := store.GetMachine(ctx, "web01")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != "m-1" || got.Address != "10.0.0.11" {
		t.Errorf("unexpected machine: %+v", got)
	}

	// Upsert with the same name updates in place.
	if err := store.UpsertMachine(ctx, &Machine{
		ID: "m-1", Name: "web01", Address: "10.0.0.99", GuestPin: "ubuntu",
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err = store.GetMachine(ctx, "web01")
	if err != nil {
		t.Fatal(err)
	}
	if got.Address != "10.0.0.99" || got.GuestPin != "ubuntu" {
		t.Errorf("upsert did not update: %+v", got)
	}

	if _, err := store.GetMachine(ctx, "missing"); err == nil {
		t.Error("expected error for unknown machine")
	}
}

func TestSQLiteStore_ListMachinesSorted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedMachine(t, store, "m-2", "web02")
	seedMachine(t, store, "m-1", "db01")

	machines, err := store.ListMachines(ctx, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(machines) != 2 || machines[0].Name != "db01" || machines[1].Name != "web02" {
		t.Errorf("expected name order [db01 web02], got %+v", machines)
	}
}

func TestSQLiteStore_DetectionHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedMachine(t, store, "m-1", "web01")

	first := &Detection{
		MachineID:  "m-1",
		Guest:      "debian",
		Method:     DetectionMethodAutodetect,
		Chain:      `["debian","linux"]`,
		Duration:   120 * time.Millisecond,
		DetectedAt: time.Now().UTC().Add(-time.Hour),
	}
	if err := store.RecordDetection(ctx, first); err != nil {
		t.Fatalf("record: %v", err)
	}
	if first.ID == 0 {
		t.Error("expected assigned detection ID")
	}

	second := &Detection{
		MachineID: "m-1",
		Guest:     "ubuntu",
		Method:    DetectionMethodAutodetect,
		Chain:     `["ubuntu","debian","linux"]`,
		Duration:  80 * time.Millisecond,
	}
	if err := store.RecordDetection(ctx, second); err != nil {
		t.Fatalf("record: %v", err)
	}

	latest, err := store.LatestDetection(ctx, "m-1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Guest != "ubuntu" {
		t.Errorf("expected latest detection ubuntu, got %s", latest.Guest)
	}
	if latest.Duration != 80*time.Millisecond {
		t.Errorf("expected 80ms duration, got %v", latest.Duration)
	}

	history, err := store.ListDetections(ctx, "m-1", 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(history) != 2 || history[0].Guest != "ubuntu" || history[1].Guest != "debian" {
		t.Errorf("unexpected history order: %+v", history)
	}

	if _, err := store.LatestDetection(ctx, "m-none"); err == nil {
		t.Error("expected error for machine with no detections")
	}
}

func TestSQLiteStore_CapabilityRunLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedMachine(t, store, "m-1", "web01")

	run := &CapabilityRun{
		MachineID:  "m-1",
		Guest:      "ubuntu",
		Capability: "package.install",
		Args:       `["curl"]`,
	}
	if err := store.StartCapabilityRun(ctx, run); err != nil {
		t.Fatalf("start: %v", err)
	}
	if run.ID == 0 || run.Status != RunStatusStarted {
		t.Fatalf("unexpected started run: %+v", run)
	}

	if err := store.CompleteCapabilityRun(ctx, run.ID, RunStatusSucceeded, "installed", ""); err != nil {
		t.Fatalf("complete: %v", err)
	}

	runs, err := store.ListCapabilityRuns(ctx, "m-1", 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	got := runs[0]
	if got.Status != RunStatusSucceeded || got.Output != "installed" {
		t.Errorf("unexpected run: %+v", got)
	}
	if got.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}

	if err := store.CompleteCapabilityRun(ctx, 9999, RunStatusFailed, "", "x"); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestSQLiteStore_DeleteMachineCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedMachine(t, store, "m-1", "web01")

	if err := store.RecordDetection(ctx, &Detection{
		MachineID: "m-1", Guest: "ubuntu", Method: DetectionMethodExplicit,
	}); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteMachine(ctx, "web01"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := store.LatestDetection(ctx, "m-1"); err == nil {
		t.Error("expected detections to cascade on machine delete")
	}
	if err := store.DeleteMachine(ctx, "web01"); err == nil {
		t.Error("expected error deleting missing machine")
	}
}

func TestSQLiteStore_MigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
