// Package store provides data access layer interfaces and implementations.
// This package abstracts database operations to improve maintainability
// and decouple business logic from specific database implementations.
package store

import "gorm.io/gorm"

// Store aggregates all data store interfaces.
// It provides a single point of access for all database operations.
type Store interface {
	Task() TaskStore
	Review() ReviewStore
	Knowledge() KnowledgeStore
	Constraint() ConstraintStore
	Feedback() FeedbackStore
	IndexJob() IndexJobStore
	Repository() RepositoryStore

	// DB returns the underlying database connection for advanced operations.
	// Use sparingly - prefer using specific store methods.
	DB() *gorm.DB

	// Transaction executes operations within a database transaction.
	Transaction(fn func(Store) error) error
}

// gormStore implements Store interface using GORM.
type gormStore struct {
	db              *gorm.DB
	taskStore       TaskStore
	reviewStore     ReviewStore
	knowledgeStore  KnowledgeStore
	constraintStore ConstraintStore
	feedbackStore   FeedbackStore
	indexJobStore   IndexJobStore
	repoStore       RepositoryStore
}

// NewStore creates a new Store instance with GORM backend.
func NewStore(db *gorm.DB) Store {
	return &gormStore{
		db:              db,
		taskStore:       newTaskStore(db),
		reviewStore:     newReviewStore(db),
		knowledgeStore:  newKnowledgeStore(db),
		constraintStore: newConstraintStore(db),
		feedbackStore:   newFeedbackStore(db),
		indexJobStore:   newIndexJobStore(db),
		repoStore:       newRepositoryStore(db),
	}
}

func (s *gormStore) Task() TaskStore {
	return s.taskStore
}

func (s *gormStore) Review() ReviewStore {
	return s.reviewStore
}

func (s *gormStore) Knowledge() KnowledgeStore {
	return s.knowledgeStore
}

func (s *gormStore) Constraint() ConstraintStore {
	return s.constraintStore
}

func (s *gormStore) Feedback() FeedbackStore {
	return s.feedbackStore
}

func (s *gormStore) IndexJob() IndexJobStore {
	return s.indexJobStore
}

func (s *gormStore) Repository() RepositoryStore {
	return s.repoStore
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) Transaction(fn func(Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}
