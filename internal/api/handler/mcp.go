// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reviewhub/reviewhub/consts"
)

// MCPTool describes one tool exposed through the MCP manifest
type MCPTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// MCPManifest is the static tool manifest for agent integrations
type MCPManifest struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Description string    `json:"description"`
	Tools       []MCPTool `json:"tools"`
}

// MCPHandler serves the MCP tool manifest. The manifest is static; tool
// invocations arrive through the regular HTTP endpoints.
type MCPHandler struct {
	manifest MCPManifest
}

// NewMCPHandler creates a new MCP handler
func NewMCPHandler() *MCPHandler {
	return &MCPHandler{
		manifest: MCPManifest{
			Name:        consts.ServiceName,
			Version:     consts.Version,
			Description: "Automated code review for pull requests with repository-aware context",
			Tools: []MCPTool{
				{
					Name:        "analyze_diff",
					Description: "Submit a pull request URL for automated review",
					InputSchema: map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"pr_url": map[string]interface{}{
								"type":        "string",
								"description": "Pull or merge request URL",
							},
						},
						"required": []string{"pr_url"},
					},
				},
				{
					Name:        "index_repository",
					Description: "Index a repository so reviews carry codebase context",
					InputSchema: map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"repo_id": map[string]interface{}{
								"type":        "string",
								"description": "Repository in owner/name form",
							},
							"git_url": map[string]interface{}{
								"type":        "string",
								"description": "Clone URL of the repository",
							},
							"branch": map[string]interface{}{
								"type":        "string",
								"description": "Branch to index, defaults to the remote default branch",
							},
						},
						"required": []string{"repo_id", "git_url"},
					},
				},
				{
					Name:        "submit_feedback",
					Description: "Record a developer's verdict on a review comment",
					InputSchema: map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"repo_id":    map[string]interface{}{"type": "string"},
							"review_id":  map[string]interface{}{"type": "string"},
							"comment_id": map[string]interface{}{"type": "string"},
							"action": map[string]interface{}{
								"type": "string",
								"enum": []string{"accepted", "rejected", "modified"},
							},
							"reason": map[string]interface{}{
								"type":        "string",
								"description": "Required when action is rejected",
							},
							"developer_comment": map[string]interface{}{"type": "string"},
						},
						"required": []string{"repo_id", "review_id", "comment_id", "action", "developer_comment"},
					},
				},
				{
					Name:        "get_task_status",
					Description: "Poll the status of a submitted task",
					InputSchema: map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"task_id": map[string]interface{}{"type": "string"},
						},
						"required": []string{"task_id"},
					},
				},
			},
		},
	}
}

// HandleManifest handles GET /mcp/manifest
func (h *MCPHandler) HandleManifest(c *gin.Context) {
	c.JSON(http.StatusOK, h.manifest)
}
