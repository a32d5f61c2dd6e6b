package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pixil98/go-testutil"
)

// mockStoreSpec implements ValidatingSpec for testing stores
type mockStoreSpec struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func (s *mockStoreSpec) Validate() error {
	return nil
}

func TestNewFileStore(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewFileStore[*mockStoreSpec](tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	testutil.AssertEqual(t, "path", store.path, tmpDir)
	testutil.AssertEqual(t, "records length", len(store.records), 0)
}

func TestNewFileStore_NonExistentDirectory(t *testing.T) {
	_, err := NewFileStore[*mockStoreSpec]("/nonexistent/path/that/does/not/exist")
	if err == nil {
		t.Error("expected error for non-existent directory")
	}
}

func TestNewFileStore_WithExistingRecords(t *testing.T) {
	tmpDir := t.TempDir()

	records := []struct {
		id   string
		spec *mockStoreSpec
	}{
		{"overworld_1_64_2", &mockStoreSpec{Name: "First", Value: 1}},
		{"overworld_-5_70_12", &mockStoreSpec{Name: "Second", Value: 2}},
	}

	for _, r := range records {
		asset := Asset[*mockStoreSpec]{
			Version:    1,
			Identifier: Identifier(r.id),
			Spec:       r.spec,
		}
		data, err := json.Marshal(asset)
		if err != nil {
			t.Fatalf("failed to marshal test asset: %v", err)
		}
		filePath := filepath.Join(tmpDir, r.id+".json")
		err = os.WriteFile(filePath, data, 0644)
		if err != nil {
			t.Fatalf("failed to write test file: %v", err)
		}
	}

	store, err := NewFileStore[*mockStoreSpec](tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	testutil.AssertEqual(t, "record count", len(store.records), 2)

	first := store.Get("overworld_1_64_2")
	if first == nil {
		t.Fatal("expected record to be loaded")
	}
	testutil.AssertEqual(t, "first name", first.Name, "First")
	testutil.AssertEqual(t, "first value", first.Value, 1)
}

func TestNewFileStore_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()

	filePath := filepath.Join(tmpDir, "bad.json")
	err := os.WriteFile(filePath, []byte(`{invalid json`), 0644)
	if err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	_, err = NewFileStore[*mockStoreSpec](tmpDir)
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestNewFileStore_DuplicateKey(t *testing.T) {
	tmpDir := t.TempDir()

	subDir := filepath.Join(tmpDir, "subdir")
	err := os.Mkdir(subDir, 0755)
	if err != nil {
		t.Fatalf("failed to create subdir: %v", err)
	}

	// Create two files with the same ID in different directories
	asset := Asset[*mockStoreSpec]{
		Version:    1,
		Identifier: "duplicate-id",
		Spec:       &mockStoreSpec{Name: "Test", Value: 1},
	}
	data, err := json.Marshal(asset)
	if err != nil {
		t.Fatalf("failed to marshal test asset: %v", err)
	}

	err = os.WriteFile(filepath.Join(tmpDir, "file1.json"), data, 0644)
	if err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	err = os.WriteFile(filepath.Join(subDir, "file2.json"), data, 0644)
	if err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	_, err = NewFileStore[*mockStoreSpec](tmpDir)
	if err == nil {
		t.Error("expected duplicate key error")
	}
}

func TestFileStore_SaveAndGet(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewFileStore[*mockStoreSpec](tmpDir)
	if err != nil {
		t.Fatalf("unexpected error creating store: %v", err)
	}

	err = store.Save("shop-1", &mockStoreSpec{Name: "Saved", Value: 7})
	if err != nil {
		t.Fatalf("unexpected error saving: %v", err)
	}

	got := store.Get("shop-1")
	if got == nil {
		t.Fatal("expected record after save")
	}
	testutil.AssertEqual(t, "saved name", got.Name, "Saved")

	// Reload from disk to confirm the write-through landed
	reloaded, err := NewFileStore[*mockStoreSpec](tmpDir)
	if err != nil {
		t.Fatalf("unexpected error reloading: %v", err)
	}
	got = reloaded.Get("shop-1")
	if got == nil {
		t.Fatal("expected record after reload")
	}
	testutil.AssertEqual(t, "reloaded value", got.Value, 7)
}

func TestFileStore_Get_Missing(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewFileStore[*mockStoreSpec](tmpDir)
	if err != nil {
		t.Fatalf("unexpected error creating store: %v", err)
	}

	if got := store.Get("missing"); got != nil {
		t.Errorf("expected nil for missing record, got %+v", got)
	}
}

func TestFileStore_Delete(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewFileStore[*mockStoreSpec](tmpDir)
	if err != nil {
		t.Fatalf("unexpected error creating store: %v", err)
	}

	err = store.Save("shop-1", &mockStoreSpec{Name: "Doomed", Value: 1})
	if err != nil {
		t.Fatalf("unexpected error saving: %v", err)
	}

	err = store.Delete("shop-1")
	if err != nil {
		t.Fatalf("unexpected error deleting: %v", err)
	}

	if got := store.Get("shop-1"); got != nil {
		t.Errorf("expected nil after delete, got %+v", got)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "shop-1.json")); !os.IsNotExist(err) {
		t.Error("expected record file to be removed")
	}
}

func TestFileStore_Delete_Missing(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewFileStore[*mockStoreSpec](tmpDir)
	if err != nil {
		t.Fatalf("unexpected error creating store: %v", err)
	}

	// Deleting a record that never existed is not an error
	if err := store.Delete("missing"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFileStore_GetAll(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewFileStore[*mockStoreSpec](tmpDir)
	if err != nil {
		t.Fatalf("unexpected error creating store: %v", err)
	}

	for _, id := range []string{"a", "b", "c"} {
		if err := store.Save(id, &mockStoreSpec{Name: id, Value: 1}); err != nil {
			t.Fatalf("unexpected error saving %q: %v", id, err)
		}
	}

	all := store.GetAll()
	testutil.AssertEqual(t, "record count", len(all), 3)

	// Mutating the returned map must not affect the store
	delete(all, "a")
	if store.Get("a") == nil {
		t.Error("expected store to retain record after caller mutation")
	}
}
