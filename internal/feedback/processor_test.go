package feedback

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/reviewhub/reviewhub/internal/broker"
	"github.com/reviewhub/reviewhub/internal/config"
	"github.com/reviewhub/reviewhub/internal/health"
	"github.com/reviewhub/reviewhub/internal/llm"
	"github.com/reviewhub/reviewhub/internal/llm/mock"
	"github.com/reviewhub/reviewhub/internal/model"
	"github.com/reviewhub/reviewhub/internal/store"
	"github.com/reviewhub/reviewhub/pkg/idgen"
)

func newTestProcessor(t *testing.T, st store.Store) *Processor {
	t.Helper()
	embedder, err := mock.NewClient(nil)
	if err != nil {
		t.Fatalf("creating mock embedder: %v", err)
	}
	return NewProcessor(st, embedder, health.NewMonitor(time.Minute),
		config.LearningConfig{ConstraintExpiryDays: 90})
}

func rejection(reason string) *model.FeedbackRequest {
	return &model.FeedbackRequest{
		RepoID:           "acme/widgets",
		ReviewID:         "rev_123",
		CommentID:        "cmt_456",
		UserID:           "dev@acme.test",
		Action:           string(model.FeedbackRejected),
		Reason:           reason,
		DeveloperComment: "This pattern is intentional in our codebase.",
	}
}

func TestProcess_AcceptedRecordsWithoutConstraint(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()
	p := newTestProcessor(t, st)

	record, err := p.Process(context.Background(), idgen.NewTraceID(), &model.FeedbackRequest{
		RepoID:           "acme/widgets",
		ReviewID:         "rev_123",
		CommentID:        "cmt_456",
		Action:           string(model.FeedbackAccepted),
		DeveloperComment: "Fixed as suggested.",
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if record.ID == "" {
		t.Error("record ID not assigned")
	}

	count, err := st.Constraint().CountAllActive(time.Now())
	if err != nil {
		t.Fatalf("counting constraints: %v", err)
	}
	if count != 0 {
		t.Errorf("constraints = %d, want 0 for accepted feedback", count)
	}
}

func TestProcess_RejectionCreatesConstraint(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()
	p := newTestProcessor(t, st)

	if _, err := p.Process(context.Background(), idgen.NewTraceID(),
		rejection("nil check unnecessary, pointer is always set")); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	constraints, err := st.Constraint().ListActive("acme/widgets", time.Now())
	if err != nil {
		t.Fatalf("listing constraints: %v", err)
	}
	if len(constraints) != 1 {
		t.Fatalf("constraints = %d, want 1", len(constraints))
	}

	c := constraints[0]
	if c.ConfidenceScore != model.ConstraintInitialConfidence {
		t.Errorf("confidence = %v, want %v", c.ConfidenceScore, model.ConstraintInitialConfidence)
	}
	if c.Version != 1 {
		t.Errorf("version = %d, want 1", c.Version)
	}
	if !c.ExpiresAt.After(time.Now().Add(80 * 24 * time.Hour)) {
		t.Errorf("expires_at = %v, want ~90 days out", c.ExpiresAt)
	}
}

func TestProcess_RepeatedRejectionReinforces(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()
	p := newTestProcessor(t, st)

	reason := "nil check unnecessary, pointer is always set"
	if _, err := p.Process(context.Background(), idgen.NewTraceID(), rejection(reason)); err != nil {
		t.Fatalf("first Process() error = %v", err)
	}
	if _, err := p.Process(context.Background(), idgen.NewTraceID(), rejection(reason)); err != nil {
		t.Fatalf("second Process() error = %v", err)
	}

	constraints, err := st.Constraint().ListActive("acme/widgets", time.Now())
	if err != nil {
		t.Fatalf("listing constraints: %v", err)
	}
	if len(constraints) != 1 {
		t.Fatalf("constraints = %d, want 1 (reinforced, not duplicated)", len(constraints))
	}

	c := constraints[0]
	want := model.ConstraintInitialConfidence + model.ConstraintReinforceStep
	if c.ConfidenceScore < want-0.001 || c.ConfidenceScore > want+0.001 {
		t.Errorf("confidence = %v, want %v", c.ConfidenceScore, want)
	}
	if c.Version != 2 {
		t.Errorf("version = %d, want 2", c.Version)
	}

	// The audit trail keeps every submission
	total, err := st.Feedback().CountAll()
	if err != nil {
		t.Fatalf("counting feedback: %v", err)
	}
	if total != 2 {
		t.Errorf("feedback records = %d, want 2", total)
	}
}

func TestProcess_LapsedDuplicateStartsWarmer(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()
	p := newTestProcessor(t, st)

	reason := "logging format nit does not apply here"

	// Seed a constraint via the processor, then force its expiry into the past
	if _, err := p.Process(context.Background(), idgen.NewTraceID(), rejection(reason)); err != nil {
		t.Fatalf("seeding Process() error = %v", err)
	}
	seeded, err := st.Constraint().ListActive("acme/widgets", time.Now())
	if err != nil || len(seeded) != 1 {
		t.Fatalf("seeding constraint: %v (%d)", err, len(seeded))
	}
	lapsed := seeded[0]
	lapsed.ExpiresAt = time.Now().Add(-time.Hour)
	if err := st.Constraint().Save(&lapsed); err != nil {
		t.Fatalf("expiring constraint: %v", err)
	}

	if _, err := p.Process(context.Background(), idgen.NewTraceID(), rejection(reason)); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	active, err := st.Constraint().ListActive("acme/widgets", time.Now())
	if err != nil {
		t.Fatalf("listing constraints: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("active constraints = %d, want 1", len(active))
	}
	want := model.ConstraintInitialConfidence + model.ConstraintReinforceStep
	if active[0].ConfidenceScore < want-0.001 || active[0].ConfidenceScore > want+0.001 {
		t.Errorf("confidence = %v, want %v (warm start)", active[0].ConfidenceScore, want)
	}
	if active[0].ConfidenceScore > model.ConstraintColdStartCap {
		t.Errorf("confidence = %v exceeds cold start cap", active[0].ConfidenceScore)
	}
}

func TestProcess_ConstraintEmbedsSnapshot(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()
	p := newTestProcessor(t, st)

	snapshot := "if cfg != nil {\n\treturn cfg.Sections[0]\n}\n"
	req := rejection("nil check unnecessary, pointer is always set")
	req.FinalCodeSnapshot = snapshot

	if _, err := p.Process(context.Background(), idgen.NewTraceID(), req); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	constraints, err := st.Constraint().ListActive("acme/widgets", time.Now())
	if err != nil || len(constraints) != 1 {
		t.Fatalf("listing constraints: %v (%d)", err, len(constraints))
	}

	// Future diffs are matched against code, so the embedding is derived
	// from the snapshot alone; the reason lives in the constraint text.
	embedder, _ := mock.NewClient(nil)
	resp, err := embedder.Embed(context.Background(), &llm.EmbeddingRequest{Texts: []string{snapshot}})
	if err != nil {
		t.Fatalf("embedding snapshot: %v", err)
	}
	want := model.Vector(resp.Vectors[0])
	got := constraints[0].Embedding
	if len(got) != len(want) {
		t.Fatalf("embedding length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("embedding[%d] = %v, want %v (snapshot-only embedding)", i, got[i], want[i])
		}
	}
}

func TestProcess_SnapshotRedactedBeforeStorage(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()
	p := newTestProcessor(t, st)

	secret := "ghp_" + strings.Repeat("c", 36)
	req := rejection("hardcoded token is a test fixture")
	req.FinalCodeSnapshot = "token := \"" + secret + "\"\n"

	record, err := p.Process(context.Background(), idgen.NewTraceID(), req)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if strings.Contains(record.FinalCodeSnapshot, secret) {
		t.Error("feedback record retains the secret")
	}

	constraints, err := st.Constraint().ListActive("acme/widgets", time.Now())
	if err != nil || len(constraints) != 1 {
		t.Fatalf("listing constraints: %v (%d)", err, len(constraints))
	}
	if strings.Contains(constraints[0].CodePattern, secret) {
		t.Error("constraint code pattern retains the secret")
	}
}

func TestProcess_ValidationFailuresArePermanent(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()
	p := newTestProcessor(t, st)

	// A rejection without a reason is invalid
	req := rejection("")
	_, err := p.Process(context.Background(), idgen.NewTraceID(), req)
	if err == nil {
		t.Fatal("Process() error = nil, want validation failure")
	}
	if !broker.IsPermanent(err) {
		t.Errorf("validation failure not permanent: %v", err)
	}

	total, err := st.Feedback().CountAll()
	if err != nil {
		t.Fatalf("counting feedback: %v", err)
	}
	if total != 0 {
		t.Errorf("feedback records = %d, want 0 after rejection", total)
	}
}
