package indexer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/reviewhub/reviewhub/internal/broker"
	"github.com/reviewhub/reviewhub/internal/config"
	"github.com/reviewhub/reviewhub/internal/health"
	"github.com/reviewhub/reviewhub/internal/llm/mock"
	"github.com/reviewhub/reviewhub/internal/model"
	"github.com/reviewhub/reviewhub/internal/store"
	"github.com/reviewhub/reviewhub/pkg/idgen"
)

// writeTree materializes a fake repository checkout for indexing
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for path, content := range files {
		full := filepath.Join(root, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0750); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0600); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	return root
}

func newTestIndexer(t *testing.T, st store.Store, cfg config.IndexingConfig) *Indexer {
	t.Helper()
	embedder, err := mock.NewClient(nil)
	if err != nil {
		t.Fatalf("creating mock embedder: %v", err)
	}
	ix, err := NewIndexer(st, embedder, health.NewMonitor(time.Minute), cfg)
	if err != nil {
		t.Fatalf("creating indexer: %v", err)
	}
	return ix
}

func newIndexTask(t *testing.T, st store.Store, req *model.IndexRequest) *model.ReviewTask {
	t.Helper()
	payload, err := model.EncodePayload(req)
	if err != nil {
		t.Fatalf("encoding payload: %v", err)
	}
	task := &model.ReviewTask{
		TaskID:  idgen.NewTaskID(),
		TraceID: idgen.NewTraceID(),
		Type:    model.TaskTypeIndexing,
		Queue:   model.TaskTypeIndexing.Queue(),
		RepoID:  req.RepoID,
		Status:  model.TaskStatusProcessing,
		Payload: payload,
	}
	if err := st.Task().Create(task); err != nil {
		t.Fatalf("creating task: %v", err)
	}
	return task
}

func TestHandleTask_IndexesLocalTree(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()

	root := writeTree(t, map[string]string{
		"main.go":           "package main\n\nfunc main() {}\n",
		"internal/auth.go":  "package auth\n\nfunc Verify(token string) bool { return token != \"\" }\n",
		"README.md":         "# Widgets\n",
		"assets/logo.png":   "\x89PNG\x00binary",
		"vendor/dep/dep.go": "package dep\n",
	})

	ix := newTestIndexer(t, st, config.IndexingConfig{Workspace: t.TempDir()})
	task := newIndexTask(t, st, &model.IndexRequest{
		RepoID: "acme/widgets",
		GitURL: root,
		Branch: "main",
	})

	result, err := ix.HandleTask(context.Background(), task)
	if err != nil {
		t.Fatalf("HandleTask() error = %v", err)
	}

	job, ok := result.(*model.IndexJob)
	if !ok {
		t.Fatalf("result type = %T, want *model.IndexJob", result)
	}
	if job.Stage != model.IndexStageCompleted {
		t.Errorf("stage = %s, want completed", job.Stage)
	}
	if job.Progress != 100 {
		t.Errorf("progress = %d, want 100", job.Progress)
	}
	// main.go, internal/auth.go, README.md; png is not a source file and
	// vendor/ is skipped entirely
	if job.FilesProcessed != 3 {
		t.Errorf("files_processed = %d, want 3", job.FilesProcessed)
	}
	if job.ChunksIndexed == 0 {
		t.Error("chunks_indexed = 0, want > 0")
	}

	count, err := st.Knowledge().CountByRepo("acme/widgets")
	if err != nil {
		t.Fatalf("counting chunks: %v", err)
	}
	if int(count) != job.ChunksIndexed {
		t.Errorf("stored chunks = %d, want %d", count, job.ChunksIndexed)
	}

	repo, err := st.Repository().GetByRepoID("acme/widgets")
	if err != nil {
		t.Fatalf("loading repository: %v", err)
	}
	if repo.LastIndexedAt == nil {
		t.Error("last_indexed_at not set")
	}
	if repo.ChunkCount != job.ChunksIndexed {
		t.Errorf("repo chunk_count = %d, want %d", repo.ChunkCount, job.ChunksIndexed)
	}
}

func TestHandleTask_RedactsSecretsBeforeStorage(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()

	token := "ghp_" + strings.Repeat("a", 36)
	root := writeTree(t, map[string]string{
		"deploy.sh": "#!/bin/sh\nexport GITHUB_TOKEN=" + token + "\n",
	})

	ix := newTestIndexer(t, st, config.IndexingConfig{Workspace: t.TempDir()})
	task := newIndexTask(t, st, &model.IndexRequest{
		RepoID: "acme/secrets",
		GitURL: root,
	})

	result, err := ix.HandleTask(context.Background(), task)
	if err != nil {
		t.Fatalf("HandleTask() error = %v", err)
	}
	job := result.(*model.IndexJob)
	if job.SecretsFound == 0 {
		t.Error("secrets_found = 0, want > 0")
	}

	vec := make(model.Vector, mock.DefaultDimensions)
	vec[0] = 1
	matches, err := st.Knowledge().Search("acme/secrets", vec, -1, 10)
	if err != nil {
		t.Fatalf("searching chunks: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("no chunks stored")
	}
	for _, m := range matches {
		if strings.Contains(m.Chunk.Content, token) {
			t.Errorf("stored chunk still contains the secret: %q", m.Chunk.Content)
		}
	}
}

func TestHandleTask_ReindexSupersedesChunks(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()

	root := writeTree(t, map[string]string{
		"a.go": "package a\n\nfunc A() {}\n",
		"b.go": "package b\n\nfunc B() {}\n",
	})

	ix := newTestIndexer(t, st, config.IndexingConfig{Workspace: t.TempDir()})
	first := newIndexTask(t, st, &model.IndexRequest{RepoID: "acme/lib", GitURL: root})
	if _, err := ix.HandleTask(context.Background(), first); err != nil {
		t.Fatalf("first index: %v", err)
	}

	// b.go disappears; its chunks must not survive the second run
	if err := os.Remove(filepath.Join(root, "b.go")); err != nil {
		t.Fatalf("removing b.go: %v", err)
	}
	// BatchUpsert keys updated_at at second granularity in SQLite
	time.Sleep(1100 * time.Millisecond)

	second := newIndexTask(t, st, &model.IndexRequest{RepoID: "acme/lib", GitURL: root})
	if _, err := ix.HandleTask(context.Background(), second); err != nil {
		t.Fatalf("second index: %v", err)
	}

	vec := make(model.Vector, mock.DefaultDimensions)
	vec[0] = 1
	matches, err := st.Knowledge().Search("acme/lib", vec, -1, 100)
	if err != nil {
		t.Fatalf("searching chunks: %v", err)
	}
	for _, m := range matches {
		if m.Chunk.FilePath == "b.go" {
			t.Error("stale chunk for deleted b.go survived re-index")
		}
	}
}

func TestHandleTask_InvalidRequestIsPermanent(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()

	ix := newTestIndexer(t, st, config.IndexingConfig{Workspace: t.TempDir()})
	task := newIndexTask(t, st, &model.IndexRequest{RepoID: "", GitURL: ""})

	_, err := ix.HandleTask(context.Background(), task)
	if err == nil {
		t.Fatal("HandleTask() error = nil, want permanent error")
	}
	if !broker.IsPermanent(err) {
		t.Errorf("error not marked permanent: %v", err)
	}
}

func TestHandleTask_CloneFailureMarksJobFailed(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()

	ix := newTestIndexer(t, st, config.IndexingConfig{Workspace: t.TempDir()})
	task := newIndexTask(t, st, &model.IndexRequest{
		RepoID:      "acme/missing",
		GitURL:      "https://127.0.0.1:1/acme/missing.git",
		AccessToken: "glpat-" + strings.Repeat("b", 20),
	})

	_, err := ix.HandleTask(context.Background(), task)
	if err == nil {
		t.Fatal("HandleTask() error = nil, want clone failure")
	}
	if strings.Contains(err.Error(), "glpat-"+strings.Repeat("b", 20)) {
		t.Error("clone error leaks the access token")
	}

	job, jerr := st.IndexJob().GetByID(task.TaskID)
	if jerr != nil {
		t.Fatalf("loading job: %v", jerr)
	}
	if job.Stage != model.IndexStageFailed {
		t.Errorf("stage = %s, want failed", job.Stage)
	}
	if job.ErrorMessage == "" {
		t.Error("error_message empty")
	}
}
