// Package indexer builds the per-repository knowledge base: it clones a
// repository, walks its source tree, redacts secrets, slices files into
// overlapping chunks, embeds them, and stores the vectors for retrieval
// during reviews. Progress is recorded stage by stage on the index job so
// clients can poll it.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/reviewhub/reviewhub/internal/broker"
	"github.com/reviewhub/reviewhub/internal/config"
	"github.com/reviewhub/reviewhub/internal/health"
	"github.com/reviewhub/reviewhub/internal/llm"
	"github.com/reviewhub/reviewhub/internal/model"
	"github.com/reviewhub/reviewhub/internal/redact"
	"github.com/reviewhub/reviewhub/internal/store"
	"github.com/reviewhub/reviewhub/pkg/logger"
	"github.com/reviewhub/reviewhub/pkg/telemetry"
	"github.com/reviewhub/reviewhub/pkg/vectors"
)

// embedBatchSize is how many chunks are embedded per provider call
const embedBatchSize = 16

// Indexer executes indexing tasks
type Indexer struct {
	store    store.Store
	embedder llm.Client
	monitor  *health.Monitor
	cfg      config.IndexingConfig
	chunker  *Chunker
}

// NewIndexer creates an indexer from the indexing configuration
func NewIndexer(st store.Store, embedder llm.Client, monitor *health.Monitor, cfg config.IndexingConfig) (*Indexer, error) {
	chunker, err := NewChunker(ChunkerConfig{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap})
	if err != nil {
		return nil, err
	}
	return &Indexer{
		store:    st,
		embedder: embedder,
		monitor:  monitor,
		cfg:      cfg,
		chunker:  chunker,
	}, nil
}

// HandleTask is the broker handler for indexing tasks. The index job row
// shares the task ID, so polling either surface tracks the same run.
func (ix *Indexer) HandleTask(ctx context.Context, task *model.ReviewTask) (any, error) {
	var req model.IndexRequest
	if err := model.DecodePayload(task.Payload, &req); err != nil {
		return nil, broker.Permanent(fmt.Errorf("decoding index payload: %w", err))
	}
	if req.RepoID == "" || req.GitURL == "" {
		return nil, broker.Permanent(fmt.Errorf("index request missing repo_id or git_url"))
	}

	job, err := ix.ensureJob(task.TaskID, &req)
	if err != nil {
		return nil, err
	}

	if err := ix.Run(ctx, job, &req); err != nil {
		if markErr := ix.store.IndexJob().MarkFailed(job.ID, err.Error()); markErr != nil {
			logger.Error("marking index job failed failed",
				zap.String("job_id", job.ID),
				zap.Error(markErr),
			)
		}
		return nil, err
	}

	final, err := ix.store.IndexJob().GetByID(job.ID)
	if err != nil {
		return nil, fmt.Errorf("loading finished index job: %w", err)
	}
	return final, nil
}

// ensureJob loads the job row created at dispatch time, creating it if
// the task was enqueued without one.
func (ix *Indexer) ensureJob(taskID string, req *model.IndexRequest) (*model.IndexJob, error) {
	job, err := ix.store.IndexJob().GetByID(taskID)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("loading index job: %w", err)
	}

	job = &model.IndexJob{
		ID:         taskID,
		RepoID:     req.RepoID,
		GitURL:     req.GitURL,
		Branch:     req.Branch,
		IndexDepth: req.IndexDepth,
		Stage:      model.IndexStageQueued,
	}
	if job.IndexDepth == "" {
		job.IndexDepth = model.IndexDepthShallow
	}
	if err := ix.store.IndexJob().Create(job); err != nil {
		return nil, fmt.Errorf("creating index job: %w", err)
	}
	return job, nil
}

// Run executes the indexing pipeline for a job. The caller owns terminal
// failure bookkeeping; Run marks the job completed on success.
func (ix *Indexer) Run(ctx context.Context, job *model.IndexJob, req *model.IndexRequest) error {
	start := time.Now()
	jobs := ix.store.IndexJob()

	if err := jobs.UpdateStage(job.ID, model.IndexStageCloning, 5); err != nil {
		return fmt.Errorf("advancing to cloning: %w", err)
	}

	root, cleanup, err := ix.materialize(ctx, req)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := jobs.UpdateStage(job.ID, model.IndexStageScanning, 10); err != nil {
		return fmt.Errorf("advancing to scanning: %w", err)
	}

	type fileEntry struct {
		path    string
		content string
	}
	var files []fileEntry
	stats, err := walkTree(root, ix.cfg.MaxFileSize, ix.cfg.IgnoredSuffixes, func(relPath, content string) error {
		files = append(files, fileEntry{path: relPath, content: content})
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking repository: %w", err)
	}
	job.FilesProcessed = stats.processed
	job.FilesSkipped = stats.skipped

	if err := jobs.UpdateStage(job.ID, model.IndexStageChunking, 20); err != nil {
		return fmt.Errorf("advancing to chunking: %w", err)
	}

	var chunks []model.KnowledgeChunk
	for _, f := range files {
		for i, piece := range ix.chunker.Split(f.content) {
			chunks = append(chunks, model.KnowledgeChunk{
				RepoID:     req.RepoID,
				FilePath:   f.path,
				ChunkIndex: i,
				Branch:     req.Branch,
				FileSize:   int64(len(f.content)),
				LineNumber: piece.StartLine,
				Content:    piece.Text,
			})
		}
	}

	if err := jobs.UpdateStage(job.ID, model.IndexStageSecrets, 30); err != nil {
		return fmt.Errorf("advancing to secret scanning: %w", err)
	}

	for i := range chunks {
		redacted, matches := redact.Redact(chunks[i].Content)
		chunks[i].Content = redacted
		if len(matches) > 0 {
			job.SecretsFound += len(matches)
			for secretType, count := range redact.CountByType(matches) {
				telemetry.GetMetrics().RecordSecretsFound(ctx, req.RepoID, secretType, int64(count))
			}
		}
	}
	if err := jobs.UpdateCounters(job.ID, job); err != nil {
		return fmt.Errorf("persisting counters: %w", err)
	}

	if err := jobs.UpdateStage(job.ID, model.IndexStageEmbedding, 40); err != nil {
		return fmt.Errorf("advancing to embedding: %w", err)
	}

	embedded, err := ix.embedChunks(ctx, job, chunks)
	if err != nil {
		return err
	}

	if err := jobs.UpdateStage(job.ID, model.IndexStageStoring, 90); err != nil {
		return fmt.Errorf("advancing to storing: %w", err)
	}

	if err := ix.store.Knowledge().BatchUpsert(embedded); err != nil {
		return fmt.Errorf("storing chunks: %w", err)
	}

	// Chunks untouched by this run belong to files that no longer exist
	stale, err := ix.store.Knowledge().DeleteStale(req.RepoID, start)
	if err != nil {
		return fmt.Errorf("deleting stale chunks: %w", err)
	}

	job.ChunksIndexed = len(embedded)
	if err := jobs.UpdateCounters(job.ID, job); err != nil {
		return fmt.Errorf("persisting counters: %w", err)
	}

	if err := ix.recordRepository(req, int64(len(embedded))); err != nil {
		return err
	}

	if err := jobs.MarkCompleted(job.ID); err != nil {
		return fmt.Errorf("marking job completed: %w", err)
	}

	depth := job.IndexDepth
	if depth == "" {
		depth = model.IndexDepthShallow
	}
	telemetry.GetMetrics().RecordIndexingCompleted(ctx, req.RepoID, depth, time.Since(start).Seconds())

	logger.Info("repository indexed",
		zap.String("job_id", job.ID),
		zap.String("repo_id", req.RepoID),
		zap.Int("files_processed", job.FilesProcessed),
		zap.Int("files_skipped", job.FilesSkipped),
		zap.Int("chunks_indexed", job.ChunksIndexed),
		zap.Int("chunks_skipped", job.ChunksSkipped),
		zap.Int("secrets_found", job.SecretsFound),
		zap.Int64("stale_deleted", stale),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// materialize produces a local checkout of the repository. A git_url that
// already names a local directory is indexed in place, which re-index runs
// on a retained workspace use.
func (ix *Indexer) materialize(ctx context.Context, req *model.IndexRequest) (string, func(), error) {
	if info, err := os.Stat(req.GitURL); err == nil && info.IsDir() {
		return req.GitURL, func() {}, nil
	}
	return cloneRepository(ctx, ix.cfg.Workspace, req)
}

// embedChunks embeds chunk content in batches. A failed batch skips its
// chunks rather than failing the run, so one bad input cannot void an
// otherwise good index.
func (ix *Indexer) embedChunks(ctx context.Context, job *model.IndexJob, chunks []model.KnowledgeChunk) ([]model.KnowledgeChunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	jobs := ix.store.IndexJob()
	embedded := make([]model.KnowledgeChunk, 0, len(chunks))
	batches := (len(chunks) + embedBatchSize - 1) / embedBatchSize

	for b := 0; b < batches; b++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		lo := b * embedBatchSize
		hi := lo + embedBatchSize
		if hi > len(chunks) {
			hi = len(chunks)
		}
		batch := chunks[lo:hi]

		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].Content
		}

		var resp *llm.EmbeddingResponse
		err := ix.monitor.Do(health.PlaneLLM, func() error {
			var embedErr error
			resp, embedErr = ix.embedder.Embed(ctx, &llm.EmbeddingRequest{Texts: texts})
			return embedErr
		})
		if err != nil {
			job.ChunksSkipped += len(batch)
			logger.Warn("embedding batch failed, skipping its chunks",
				zap.String("job_id", job.ID),
				zap.Int("batch", b),
				zap.Int("chunks", len(batch)),
				zap.Error(err),
			)
			continue
		}
		if len(resp.Vectors) != len(batch) {
			job.ChunksSkipped += len(batch)
			logger.Warn("embedding batch returned wrong vector count",
				zap.String("job_id", job.ID),
				zap.Int("want", len(batch)),
				zap.Int("got", len(resp.Vectors)),
			)
			continue
		}
		if resp.Usage != nil {
			telemetry.GetMetrics().RecordLLMTokens(ctx, "embedding", resp.Model, int64(resp.Usage.TotalTokens))
		}

		for i := range batch {
			batch[i].Embedding = vectors.Normalize(resp.Vectors[i])
			embedded = append(embedded, batch[i])
		}

		// Embedding spans the 40..90 progress band
		progress := 40 + (b+1)*50/batches
		if err := jobs.UpdateStage(job.ID, model.IndexStageEmbedding, progress); err != nil {
			return nil, fmt.Errorf("updating embedding progress: %w", err)
		}
	}
	return embedded, nil
}

// recordRepository upserts the repository registry entry for the indexed repo
func (ix *Indexer) recordRepository(req *model.IndexRequest, chunkCount int64) error {
	if _, err := ix.store.Repository().Ensure(req.RepoID); err != nil {
		return fmt.Errorf("ensuring repository record: %w", err)
	}
	if err := ix.store.Repository().UpdateDetails(req.RepoID, "", req.GitURL, req.Branch); err != nil {
		return fmt.Errorf("updating repository details: %w", err)
	}
	if err := ix.store.Repository().MarkIndexed(req.RepoID, chunkCount, time.Now()); err != nil {
		return fmt.Errorf("marking repository indexed: %w", err)
	}
	return nil
}
