package idgen

import (
	"regexp"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestNewID(t *testing.T) {
	t.Run("20 characters", func(t *testing.T) {
		if id := NewID(); len(id) != 20 {
			t.Errorf("NewID() length = %d, want 20", len(id))
		}
	})

	t.Run("unique", func(t *testing.T) {
		ids := make(map[string]bool)
		for i := 0; i < 1000; i++ {
			id := NewID()
			if ids[id] {
				t.Fatalf("NewID() generated duplicate: %s", id)
			}
			ids[id] = true
		}
	})

	t.Run("URL-safe", func(t *testing.T) {
		// xid is lowercase base32
		urlSafe := regexp.MustCompile(`^[a-z0-9]+$`)
		for i := 0; i < 100; i++ {
			if id := NewID(); !urlSafe.MatchString(id) {
				t.Errorf("NewID() returned non-URL-safe ID: %s", id)
			}
		}
	})

	t.Run("sortable by creation time", func(t *testing.T) {
		var prev string
		for i := 0; i < 100; i++ {
			id := NewID()
			if prev != "" && id <= prev {
				t.Errorf("IDs out of order: %s <= %s", id, prev)
			}
			prev = id
		}
	})

	t.Run("concurrent generation", func(t *testing.T) {
		var wg sync.WaitGroup
		ids := make(chan string, 1000)

		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					ids <- NewID()
				}
			}()
		}
		wg.Wait()
		close(ids)

		seen := make(map[string]bool)
		for id := range ids {
			if seen[id] {
				t.Fatalf("concurrent NewID() generated duplicate: %s", id)
			}
			seen[id] = true
		}
	})
}

func TestEntityIDs(t *testing.T) {
	// Entity IDs share the xid format
	for name, gen := range map[string]func() string{
		"NewReviewID":     NewReviewID,
		"NewChunkID":      NewChunkID,
		"NewConstraintID": NewConstraintID,
		"NewFeedbackID":   NewFeedbackID,
		"NewRequestID":    NewRequestID,
	} {
		if id := gen(); len(id) != 20 {
			t.Errorf("%s() length = %d, want 20", name, len(id))
		}
	}
}

func TestNewTaskID(t *testing.T) {
	id := NewTaskID()
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("NewTaskID() returned non-UUID %q: %v", id, err)
	}
	if NewTaskID() == id {
		t.Error("NewTaskID() should not repeat")
	}
}

func TestNewTraceID(t *testing.T) {
	id := NewTraceID()
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("NewTraceID() returned non-UUID %q: %v", id, err)
	}
	if NewTraceID() == id {
		t.Error("NewTraceID() should not repeat")
	}
}

func TestNewSecureSecret(t *testing.T) {
	t.Run("exact length", func(t *testing.T) {
		for _, length := range []int{0, 1, 8, 16, 32, 64, 128} {
			if secret := NewSecureSecret(length); len(secret) != length {
				t.Errorf("NewSecureSecret(%d) length = %d", length, len(secret))
			}
		}
	})

	t.Run("unique", func(t *testing.T) {
		secrets := make(map[string]bool)
		for i := 0; i < 100; i++ {
			secret := NewSecureSecret(32)
			if secrets[secret] {
				t.Fatalf("NewSecureSecret() generated duplicate: %s", secret)
			}
			secrets[secret] = true
		}
	})

	t.Run("URL-safe base64 alphabet", func(t *testing.T) {
		urlSafe := regexp.MustCompile(`^[A-Za-z0-9\-_]+$`)
		for i := 0; i < 100; i++ {
			if secret := NewSecureSecret(32); !urlSafe.MatchString(secret) {
				t.Errorf("NewSecureSecret() returned non-URL-safe secret: %s", secret)
			}
		}
	})
}

func BenchmarkNewID(b *testing.B) {
	for i := 0; i < b.N; i++ {
		NewID()
	}
}

func BenchmarkNewSecureSecret(b *testing.B) {
	for i := 0; i < b.N; i++ {
		NewSecureSecret(32)
	}
}
