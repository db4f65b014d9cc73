package store

import (
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/reviewhub/reviewhub/internal/model"
	"github.com/reviewhub/reviewhub/pkg/idgen"
	"github.com/reviewhub/reviewhub/pkg/vectors"
)

const constraintSearchBatch = 500

// ConstraintStore defines operations for learned suppression constraints.
type ConstraintStore interface {
	Create(constraint *model.LearnedConstraint) error
	GetByID(id string) (*model.LearnedConstraint, error)
	Save(constraint *model.LearnedConstraint) error

	// Search returns active constraints with cosine similarity >= threshold,
	// ordered by similarity descending. Expired constraints never match.
	Search(repoID string, query model.Vector, threshold float64, k int) ([]model.ConstraintMatch, error)
	// SearchAny is Search without the expiry filter. The feedback processor
	// uses it to detect lapsed near-duplicates when scoring a new constraint.
	SearchAny(repoID string, query model.Vector, threshold float64, k int) ([]model.ConstraintMatch, error)

	ListActive(repoID string, now time.Time) ([]model.LearnedConstraint, error)
	CountActive(repoID string, now time.Time) (int64, error)
	CountAllActive(now time.Time) (int64, error)
	// ActiveRepoCounts returns active-constraint counts per repository for
	// gauge aggregation.
	ActiveRepoCounts(now time.Time) (map[string]int64, error)

	// DeleteExpired removes lapsed constraints and reports how many were
	// removed per repository.
	DeleteExpired(now time.Time) (map[string]int64, error)
	// DeleteAll implements right-to-forget for one repository.
	DeleteAll(repoID string) (int64, error)
}

// constraintStore implements ConstraintStore using GORM.
type constraintStore struct {
	db *gorm.DB
}

func newConstraintStore(db *gorm.DB) ConstraintStore {
	return &constraintStore{db: db}
}

func (s *constraintStore) Create(constraint *model.LearnedConstraint) error {
	if constraint.ID == "" {
		constraint.ID = idgen.NewConstraintID()
	}
	constraint.Embedding = vectors.Normalize(constraint.Embedding)
	return s.db.Create(constraint).Error
}

func (s *constraintStore) GetByID(id string) (*model.LearnedConstraint, error) {
	var constraint model.LearnedConstraint
	err := s.db.First(&constraint, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &constraint, nil
}

func (s *constraintStore) Save(constraint *model.LearnedConstraint) error {
	return s.db.Save(constraint).Error
}

func (s *constraintStore) Search(repoID string, query model.Vector, threshold float64, k int) ([]model.ConstraintMatch, error) {
	return s.search(repoID, query, threshold, k, true)
}

func (s *constraintStore) SearchAny(repoID string, query model.Vector, threshold float64, k int) ([]model.ConstraintMatch, error) {
	return s.search(repoID, query, threshold, k, false)
}

func (s *constraintStore) search(repoID string, query model.Vector, threshold float64, k int, activeOnly bool) ([]model.ConstraintMatch, error) {
	if k <= 0 || len(query) == 0 {
		return nil, nil
	}
	normalized := vectors.Normalize(query)

	scope := s.db.Where("repo_id = ?", repoID)
	if activeOnly {
		scope = scope.Where("expires_at > ?", time.Now())
	}

	var matches []model.ConstraintMatch
	var constraints []model.LearnedConstraint
	err := scope.FindInBatches(&constraints, constraintSearchBatch, func(tx *gorm.DB, batch int) error {
		for i := range constraints {
			sim := vectors.Dot(normalized, constraints[i].Embedding)
			if sim >= threshold {
				matches = append(matches, model.ConstraintMatch{
					Constraint: constraints[i],
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

func (s *constraintStore) ListActive(repoID string, now time.Time) ([]model.LearnedConstraint, error) {
	var constraints []model.LearnedConstraint
	err := s.db.Where("repo_id = ? AND expires_at > ?", repoID, now).
		Order("confidence_score DESC").
		Find(&constraints).Error
	return constraints, err
}

func (s *constraintStore) CountActive(repoID string, now time.Time) (int64, error) {
	var count int64
	err := s.db.Model(&model.LearnedConstraint{}).
		Where("repo_id = ? AND expires_at > ?", repoID, now).
		Count(&count).Error
	return count, err
}

func (s *constraintStore) CountAllActive(now time.Time) (int64, error) {
	var count int64
	err := s.db.Model(&model.LearnedConstraint{}).
		Where("expires_at > ?", now).
		Count(&count).Error
	return count, err
}

type repoCount struct {
	RepoID string
	Count  int64
}

func (s *constraintStore) ActiveRepoCounts(now time.Time) (map[string]int64, error) {
	var rows []repoCount
	err := s.db.Model(&model.LearnedConstraint{}).
		Select("repo_id, COUNT(*) as count").
		Where("expires_at > ?", now).
		Group("repo_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.RepoID] = r.Count
	}
	return counts, nil
}

func (s *constraintStore) DeleteExpired(now time.Time) (map[string]int64, error) {
	var rows []repoCount
	err := s.db.Model(&model.LearnedConstraint{}).
		Select("repo_id, COUNT(*) as count").
		Where("expires_at <= ?", now).
		Group("repo_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return map[string]int64{}, nil
	}

	if err := s.db.Where("expires_at <= ?", now).Delete(&model.LearnedConstraint{}).Error; err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.RepoID] = r.Count
	}
	return counts, nil
}

func (s *constraintStore) DeleteAll(repoID string) (int64, error) {
	result := s.db.Where("repo_id = ?", repoID).Delete(&model.LearnedConstraint{})
	return result.RowsAffected, result.Error
}
