package storage

import (
	"context"
	"reflect"
	"testing"
)

func TestBoltStoreAppendPreservesOrder(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/tracker.db"

	store, err := openBolt(path)
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}

	if err := store.InitializeSchema(ctx, Header); err != nil {
		t.Fatalf("InitializeSchema: %v", err)
	}
	first := []Row{
		{"b", "Chan", "2024-06-10T01:00:00Z", "2024-06-10T02:00:00Z", "10", "1", "0", "10.00", "0.1000"},
		{"a", "Chan", "2024-06-10T01:00:00Z", "2024-06-10T02:00:00Z", "20", "0", "0", "20.00", "0.0000"},
	}
	second := []Row{
		{"c", "Chan", "2024-06-10T01:30:00Z", "2024-06-10T03:00:00Z", "5", "0", "0", "3.33", "0.0000"},
	}
	if err := store.AppendRows(ctx, first); err != nil {
		t.Fatalf("AppendRows: %v", err)
	}
	if err := store.AppendRows(ctx, second); err != nil {
		t.Fatalf("AppendRows: %v", err)
	}
	if err := store.AppendRows(ctx, nil); err != nil {
		t.Fatalf("AppendRows(nil): %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen to prove durability.
	store, err = openBolt(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()

	snapshot, err := store.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !reflect.DeepEqual(snapshot.Header, Header) {
		t.Errorf("Header = %v, want %v", snapshot.Header, Header)
	}
	want := append(append([]Row{}, first...), second...)
	if !reflect.DeepEqual(snapshot.Rows, want) {
		t.Errorf("Rows = %v, want %v", snapshot.Rows, want)
	}
}

func TestBoltStoreCanceledContext(t *testing.T) {
	store, err := openBolt(t.TempDir() + "/tracker.db")
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.AppendRows(ctx, []Row{{"x"}}); err == nil {
		t.Error("AppendRows with canceled context should fail")
	}
	if _, err := store.ReadAll(ctx); err == nil {
		t.Error("ReadAll with canceled context should fail")
	}
}
