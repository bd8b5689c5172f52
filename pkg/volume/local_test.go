package volume

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewLocalPool(t *testing.T) {
	tmpDir := t.TempDir()

	pool, err := NewLocalPool(tmpDir)
	if err != nil {
		t.Fatalf("NewLocalPool() error = %v", err)
	}

	if pool == nil {
		t.Fatal("NewLocalPool() returned nil pool")
	}

	if pool.basePath != tmpDir {
		t.Errorf("basePath = %v, want %v", pool.basePath, tmpDir)
	}

	if _, err := os.Stat(tmpDir); os.IsNotExist(err) {
		t.Error("base directory was not created")
	}
}

func TestLocalPool_Create(t *testing.T) {
	tmpDir := t.TempDir()
	pool, _ := NewLocalPool(tmpDir)

	path, err := pool.Create("env-abc123")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("pool directory was not created at %s", path)
	}

	if path != pool.Path("env-abc123") {
		t.Errorf("Create() path = %v, want %v", path, pool.Path("env-abc123"))
	}
}

func TestLocalPool_Delete(t *testing.T) {
	tmpDir := t.TempDir()
	pool, _ := NewLocalPool(tmpDir)

	path, err := pool.Create("env-abc123")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	testFile := filepath.Join(path, "disk.qcow2")
	if err := os.WriteFile(testFile, []byte("data"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if err := pool.Delete("env-abc123"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("pool directory still exists after delete")
	}
}

func TestLocalPool_DeleteNonExistent(t *testing.T) {
	tmpDir := t.TempDir()
	pool, _ := NewLocalPool(tmpDir)

	if err := pool.Delete("never-created"); err != nil {
		t.Errorf("Delete() on non-existent pool error = %v, want nil", err)
	}
}

func TestManager_CreateAndDeletePool(t *testing.T) {
	tmpDir := t.TempDir()
	local, _ := NewLocalPool(tmpDir)

	m := &Manager{pools: map[string]Pool{"local": local}}

	path, err := m.CreatePool("local", "env-abc123")
	if err != nil {
		t.Fatalf("CreatePool() error = %v", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("pool was not created")
	}

	if err := m.DeletePool("local", "env-abc123"); err != nil {
		t.Fatalf("DeletePool() error = %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("pool was not deleted")
	}
}

func TestManager_UnknownPool(t *testing.T) {
	tmpDir := t.TempDir()
	local, _ := NewLocalPool(tmpDir)

	m := &Manager{pools: map[string]Pool{"local": local}}

	if _, err := m.CreatePool("nfs", "env-abc123"); err == nil {
		t.Error("CreatePool() with unknown pool name should return error")
	}
}
