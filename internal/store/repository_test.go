package store

import (
	"testing"
	"time"

	"github.com/reviewhub/reviewhub/internal/model"
)

// TestRepositoryStore_Ensure tests lazy registry creation
func TestRepositoryStore_Ensure(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	repo, err := store.Repository().Ensure("org/repo")
	if err != nil {
		t.Fatalf("Ensure() failed: %v", err)
	}
	if repo.ID == "" {
		t.Fatal("Expected Ensure to assign an ID")
	}

	// A second Ensure returns the same record
	again, err := store.Repository().Ensure("org/repo")
	if err != nil {
		t.Fatalf("Ensure() second call failed: %v", err)
	}
	if again.ID != repo.ID {
		t.Errorf("Expected the existing record, got new ID '%s'", again.ID)
	}

	count, _ := store.Repository().CountAll()
	if count != 1 {
		t.Errorf("Expected 1 repository, got %d", count)
	}
}

// TestRepositoryStore_UpdateDetails tests filling in webhook metadata
func TestRepositoryStore_UpdateDetails(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	if _, err := store.Repository().Ensure("org/repo"); err != nil {
		t.Fatalf("Ensure() failed: %v", err)
	}

	err := store.Repository().UpdateDetails("org/repo", model.PlatformGitHub, "https://github.com/org/repo.git", "main")
	if err != nil {
		t.Fatalf("UpdateDetails() failed: %v", err)
	}

	repo, err := store.Repository().GetByRepoID("org/repo")
	if err != nil {
		t.Fatalf("GetByRepoID() failed: %v", err)
	}
	if repo.Platform != model.PlatformGitHub || repo.DefaultBranch != "main" {
		t.Errorf("Expected details persisted, got %+v", repo)
	}

	// Empty fields leave stored values untouched
	if err := store.Repository().UpdateDetails("org/repo", "", "", ""); err != nil {
		t.Fatalf("UpdateDetails() with empty fields failed: %v", err)
	}
	repo, _ = store.Repository().GetByRepoID("org/repo")
	if repo.Platform != model.PlatformGitHub {
		t.Errorf("Expected platform preserved, got '%s'", repo.Platform)
	}
}

// TestRepositoryStore_MarkIndexed tests indexing bookkeeping
func TestRepositoryStore_MarkIndexed(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	if _, err := store.Repository().Ensure("org/repo"); err != nil {
		t.Fatalf("Ensure() failed: %v", err)
	}

	at := time.Now()
	if err := store.Repository().MarkIndexed("org/repo", 128, at); err != nil {
		t.Fatalf("MarkIndexed() failed: %v", err)
	}

	repo, _ := store.Repository().GetByRepoID("org/repo")
	if repo.ChunkCount != 128 {
		t.Errorf("Expected chunk count 128, got %d", repo.ChunkCount)
	}
	if repo.LastIndexedAt == nil {
		t.Error("Expected LastIndexedAt to be set")
	}
}

// TestStore_Transaction tests transactional rollback across stores
func TestStore_Transaction(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	err := store.Transaction(func(tx Store) error {
		if _, err := tx.Repository().Ensure("org/rollback"); err != nil {
			return err
		}
		return errInjected
	})
	if err != errInjected {
		t.Fatalf("Expected injected error, got %v", err)
	}

	if _, err := store.Repository().GetByRepoID("org/rollback"); err == nil {
		t.Error("Expected rollback to discard the repository record")
	}

	err = store.Transaction(func(tx Store) error {
		_, err := tx.Repository().Ensure("org/committed")
		return err
	})
	if err != nil {
		t.Fatalf("Transaction() failed: %v", err)
	}
	if _, err := store.Repository().GetByRepoID("org/committed"); err != nil {
		t.Errorf("Expected committed record to persist: %v", err)
	}
}

var errInjected = errRollback("injected")

type errRollback string

func (e errRollback) Error() string { return string(e) }
