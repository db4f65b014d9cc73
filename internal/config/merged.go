// Package config provides configuration management for the application.
// This file handles merging server review defaults with per-request options.
package config

import (
	"github.com/reviewhub/reviewhub/internal/model"
)

// EffectiveReviewConfig merges the per-request review options with the
// server's configured defaults and resolves every field to a concrete
// value. The result is what the review pipeline executes and what the
// config hash is computed from, so two requests that differ only in
// how they spell the defaults converge on the same fingerprint.
func (c *ReviewConfig) EffectiveReviewConfig(req *model.ReviewConfig) model.ReviewConfig {
	merged := model.ReviewConfig{}
	if req != nil {
		merged = *req
	}

	// Server defaults fill fields the request left unset
	if merged.MaxContextMatches == 0 && c.RAGMatches > 0 {
		merged.MaxContextMatches = c.RAGMatches
	}
	if merged.Language == "" {
		merged.Language = c.OutputLanguage
	}

	return merged.Normalized()
}
