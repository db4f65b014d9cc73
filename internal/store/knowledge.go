package store

import (
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/reviewhub/reviewhub/internal/model"
	"github.com/reviewhub/reviewhub/pkg/idgen"
	"github.com/reviewhub/reviewhub/pkg/vectors"
)

// knowledgeSearchBatch is the page size for the in-process similarity scan.
const knowledgeSearchBatch = 500

// KnowledgeStore defines operations for embedded repository knowledge.
// Every query is scoped by repo_id; results never cross repositories.
type KnowledgeStore interface {
	// Upsert inserts a chunk, superseding any prior chunk with the same
	// (repo_id, file_path, chunk_index) identity.
	Upsert(chunk *model.KnowledgeChunk) error
	BatchUpsert(chunks []model.KnowledgeChunk) error

	// Search returns up to k chunks with cosine similarity >= threshold,
	// ordered by similarity descending.
	Search(repoID string, query model.Vector, threshold float64, k int) ([]model.KnowledgeMatch, error)

	CountByRepo(repoID string) (int64, error)
	CountAll() (int64, error)

	// DeleteExpired bulk-deletes chunks not refreshed since the cutoff.
	DeleteExpired(cutoff time.Time) (int64, error)
	// DeleteStale removes chunks a completed re-index did not touch.
	DeleteStale(repoID string, indexedBefore time.Time) (int64, error)
	// DeleteAll implements right-to-forget for one repository.
	DeleteAll(repoID string) (int64, error)
}

// knowledgeStore implements KnowledgeStore using GORM.
type knowledgeStore struct {
	db *gorm.DB
}

func newKnowledgeStore(db *gorm.DB) KnowledgeStore {
	return &knowledgeStore{db: db}
}

// chunkIdentityColumns is the conflict target matching idx_chunk_identity.
var chunkIdentityColumns = []clause.Column{
	{Name: "repo_id"},
	{Name: "file_path"},
	{Name: "chunk_index"},
}

func (s *knowledgeStore) Upsert(chunk *model.KnowledgeChunk) error {
	if chunk.ID == "" {
		chunk.ID = idgen.NewChunkID()
	}
	chunk.Embedding = vectors.Normalize(chunk.Embedding)
	return s.db.Clauses(clause.OnConflict{
		Columns: chunkIdentityColumns,
		DoUpdates: clause.AssignmentColumns([]string{
			"branch", "file_size", "pr_number", "line_number",
			"content", "embedding", "updated_at",
		}),
	}).Create(chunk).Error
}

func (s *knowledgeStore) BatchUpsert(chunks []model.KnowledgeChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for i := range chunks {
		if chunks[i].ID == "" {
			chunks[i].ID = idgen.NewChunkID()
		}
		chunks[i].Embedding = vectors.Normalize(chunks[i].Embedding)
	}
	return s.db.Clauses(clause.OnConflict{
		Columns: chunkIdentityColumns,
		DoUpdates: clause.AssignmentColumns([]string{
			"branch", "file_size", "pr_number", "line_number",
			"content", "embedding", "updated_at",
		}),
	}).Create(&chunks).Error
}

// Search scans the repository's chunks in batches and scores them in
// process. Embeddings are normalized on write, so the dot product of the
// normalized query equals cosine similarity.
func (s *knowledgeStore) Search(repoID string, query model.Vector, threshold float64, k int) ([]model.KnowledgeMatch, error) {
	if k <= 0 || len(query) == 0 {
		return nil, nil
	}
	normalized := vectors.Normalize(query)

	var matches []model.KnowledgeMatch
	var chunks []model.KnowledgeChunk
	err := s.db.Where("repo_id = ?", repoID).
		FindInBatches(&chunks, knowledgeSearchBatch, func(tx *gorm.DB, batch int) error {
			for i := range chunks {
				sim := vectors.Dot(normalized, chunks[i].Embedding)
				if sim >= threshold {
					matches = append(matches, model.KnowledgeMatch{
						Chunk:      chunks[i],
						Similarity: sim,
					})
				}
			}
			return nil
		}).Error
	if err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (s *knowledgeStore) CountByRepo(repoID string) (int64, error) {
	var count int64
	err := s.db.Model(&model.KnowledgeChunk{}).Where("repo_id = ?", repoID).Count(&count).Error
	return count, err
}

func (s *knowledgeStore) CountAll() (int64, error) {
	var count int64
	err := s.db.Model(&model.KnowledgeChunk{}).Count(&count).Error
	return count, err
}

func (s *knowledgeStore) DeleteExpired(cutoff time.Time) (int64, error) {
	result := s.db.Where("updated_at < ?", cutoff).Delete(&model.KnowledgeChunk{})
	return result.RowsAffected, result.Error
}

func (s *knowledgeStore) DeleteStale(repoID string, indexedBefore time.Time) (int64, error) {
	result := s.db.Where("repo_id = ? AND updated_at < ?", repoID, indexedBefore).
		Delete(&model.KnowledgeChunk{})
	return result.RowsAffected, result.Error
}

func (s *knowledgeStore) DeleteAll(repoID string) (int64, error) {
	result := s.db.Where("repo_id = ?", repoID).Delete(&model.KnowledgeChunk{})
	return result.RowsAffected, result.Error
}
