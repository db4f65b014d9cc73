// Package idgen centralizes identifier generation so the underlying
// strategy can change without touching call sites. Entity IDs are xid
// (short, sortable), task and trace IDs are UUIDv4 because external
// clients poll them and expect standard UUID syntax.
package idgen

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/google/uuid"
	"github.com/rs/xid"
)

// NewID returns a 20-character xid: globally unique, sortable by
// creation time, and URL-safe.
func NewID() string {
	return xid.New().String()
}

// NewTaskID returns a UUIDv4 identifier for queue tasks
func NewTaskID() string {
	return uuid.NewString()
}

// NewTraceID returns a UUIDv4 identifier that correlates a request
// across ingress, queue, worker, and store log lines
func NewTraceID() string {
	return uuid.NewString()
}

// NewReviewID returns an ID for review entities. An alias for NewID
// today; a "rev_" style prefix can be added here later.
func NewReviewID() string {
	return NewID()
}

// NewChunkID returns an ID for knowledge chunk entities
func NewChunkID() string {
	return NewID()
}

// NewConstraintID returns an ID for learned constraint entities
func NewConstraintID() string {
	return NewID()
}

// NewFeedbackID returns an ID for feedback record entities
func NewFeedbackID() string {
	return NewID()
}

// NewRequestID returns an ID attached to each HTTP request for log
// correlation
func NewRequestID() string {
	return NewID()
}

// NewSecureSecret returns a cryptographically random URL-safe string
// of exactly the given length. Used for JWT secrets and webhook
// tokens.
func NewSecureSecret(length int) string {
	// base64 expands by 4/3, so round the byte count up
	byteLength := (length*3 + 3) / 4
	bytes := make([]byte, byteLength)

	if _, err := rand.Read(bytes); err != nil {
		// crypto/rand does not fail on supported platforms
		return "please-generate-a-secure-random-secret"
	}

	encoded := base64.URLEncoding.EncodeToString(bytes)
	if len(encoded) > length {
		encoded = encoded[:length]
	}
	return encoded
}
