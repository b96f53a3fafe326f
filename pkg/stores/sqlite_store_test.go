package stores

import (
	"context"
	"testing"
	"time"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	tables := []string{"runs", "events", "allocations"}
	for _, table := range tables {
		query := "SELECT COUNT(*) FROM " + table
		var count int
		err := store.db.QueryRowContext(ctx, query).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

// TestRunCRUD tests run creation, retrieval and status updates
func TestRunCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	run := &Run{
		ID:        "run-001",
		Manifest:  "cluster",
		Operation: "apply",
		Status:    RunStatusRunning,
		StartedAt: now,
		Metadata:  `{"vars":3}`,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	retrieved, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if retrieved.Manifest != "cluster" || retrieved.Operation != "apply" {
		t.Errorf("got %s/%s, want cluster/apply", retrieved.Manifest, retrieved.Operation)
	}
	if retrieved.CompletedAt != nil {
		t.Error("CompletedAt set on a running run")
	}

	if err := store.UpdateRunStatus(ctx, run.ID, RunStatusCompleted, nil); err != nil {
		t.Fatalf("failed to update run status: %v", err)
	}

	retrieved, err = store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if retrieved.Status != RunStatusCompleted {
		t.Errorf("Status = %s, want completed", retrieved.Status)
	}
	if retrieved.CompletedAt == nil {
		t.Error("CompletedAt not set on completed run")
	}
}

func TestUpdateRunStatusFailed(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	run := &Run{
		ID:        "run-002",
		Manifest:  "cluster",
		Operation: "destroy",
		Status:    RunStatusRunning,
		StartedAt: now,
		Metadata:  "{}",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	msg := "terraform exited with code 1"
	if err := store.UpdateRunStatus(ctx, run.ID, RunStatusFailed, &msg); err != nil {
		t.Fatalf("failed to update run status: %v", err)
	}

	retrieved, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if retrieved.Error == nil || *retrieved.Error != msg {
		t.Errorf("Error = %v, want %q", retrieved.Error, msg)
	}
}

func TestUpdateMissingRun(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	if err := store.UpdateRunStatus(context.Background(), "no-such-run", RunStatusFailed, nil); err == nil {
		t.Error("expected error for missing run")
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now()

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		run := &Run{
			ID:        id,
			Manifest:  "cluster",
			Operation: "apply",
			Status:    RunStatusCompleted,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			Metadata:  "{}",
			CreatedAt: base,
			UpdatedAt: base,
		}
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}
	}

	runs, err := store.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].ID != "run-c" || runs[1].ID != "run-b" {
		t.Errorf("got order %s, %s, want run-c, run-b", runs[0].ID, runs[1].ID)
	}
}

// TestEventLog tests event append and retrieval ordering
func TestEventLog(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	run := &Run{
		ID:        "run-events",
		Manifest:  "cluster",
		Operation: "apply",
		Status:    RunStatusRunning,
		StartedAt: now,
		Metadata:  "{}",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	messages := []string{"resolution started", "allocation committed", "terraform apply finished"}
	for _, msg := range messages {
		event := &Event{
			RunID:     run.ID,
			Level:     EventLevelInfo,
			Message:   msg,
			Timestamp: time.Now(),
		}
		if err := store.AppendEvent(ctx, event); err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
		if event.ID == 0 {
			t.Error("event ID not assigned")
		}
	}

	events, err := store.ListEvents(ctx, run.ID, 10, 0)
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}
	if len(events) != len(messages) {
		t.Fatalf("got %d events, want %d", len(events), len(messages))
	}
	for i, event := range events {
		if event.Message != messages[i] {
			t.Errorf("event %d = %q, want %q", i, event.Message, messages[i])
		}
	}
}

// TestAllocationRecords tests allocation recording per run
func TestAllocationRecords(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	run := &Run{
		ID:        "run-allocs",
		Manifest:  "cluster",
		Operation: "apply",
		Status:    RunStatusCompleted,
		StartedAt: now,
		Metadata:  "{}",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	network := "lan"
	allocs := []*Allocation{
		{RunID: run.ID, Kind: "vmid", RefID: "vm:id:web", Value: "100", CreatedAt: now},
		{RunID: run.ID, Kind: "ip", RefID: "ip:lan:web", Value: "10.0.0.2/24", Network: &network, CreatedAt: now},
	}
	for _, alloc := range allocs {
		if err := store.RecordAllocation(ctx, alloc); err != nil {
			t.Fatalf("failed to record allocation: %v", err)
		}
	}

	got, err := store.ListAllocationsByRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to list allocations: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d allocations, want 2", len(got))
	}
	if got[0].Kind != "vmid" || got[0].Value != "100" {
		t.Errorf("first allocation = %s/%s, want vmid/100", got[0].Kind, got[0].Value)
	}
	if got[1].Network == nil || *got[1].Network != "lan" {
		t.Errorf("second allocation network = %v, want lan", got[1].Network)
	}
}
