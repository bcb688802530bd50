package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rsloan/skillroute/internal/backend"
	"github.com/rsloan/skillroute/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams        = -32602 // Invalid method parameters
	ErrorCodeInternalError        = -32603 // Internal JSON-RPC error
	ErrorCodeCollectionNotFound   = -32001 // Named collection has no stored commands
	ErrorCodeEmbeddingUnavailable = -32002 // No embedding transport could serve the query
	ErrorCodeEmptyQuery           = -32003 // Query parameter is empty
)

// handleRouteQuery handles the route_query tool invocation
func (s *Server) handleRouteQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	collection, ok := args["collection"].(string)
	if !ok || collection == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "collection parameter is required", map[string]interface{}{
			"param":  "collection",
			"reason": "missing or empty",
		})
	}

	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	threshold := getFloatDefault(args, "threshold", 0)
	if threshold < 0 || threshold > 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "threshold must be between 0.0 and 1.0", map[string]interface{}{
			"param": "threshold",
			"value": threshold,
		})
	}

	q := types.Query{
		Text:       query,
		Collection: collection,
		Limit:      limit,
		Threshold:  threshold,
		Profile:    getStringDefault(args, "profile", ""),
		UseCache:   getBoolDefault(args, "use_cache", true),
	}

	candidates, err := s.router.RouteHybrid(ctx, q)
	if err != nil {
		if errors.Is(err, types.ErrEmbeddingUnavailable) {
			return nil, newMCPError(ErrorCodeEmbeddingUnavailable, "embedding service unavailable", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return nil, newMCPError(ErrorCodeInternalError, "routing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"collection":      collection,
		"candidate_count": len(candidates),
		"candidates":      candidates,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleRegisterCommand handles the register_command tool invocation
func (s *Server) handleRegisterCommand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	collection, ok := args["collection"].(string)
	if !ok || collection == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "collection parameter is required", map[string]interface{}{
			"param":  "collection",
			"reason": "missing or empty",
		})
	}

	skillName, ok := args["skill_name"].(string)
	if !ok || skillName == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "skill_name parameter is required", map[string]interface{}{
			"param":  "skill_name",
			"reason": "missing or empty",
		})
	}

	commandName, ok := args["command_name"].(string)
	if !ok || commandName == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "command_name parameter is required", map[string]interface{}{
			"param":  "command_name",
			"reason": "missing or empty",
		})
	}

	description, ok := args["description"].(string)
	if !ok || strings.TrimSpace(description) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "description parameter is required", map[string]interface{}{
			"param":  "description",
			"reason": "missing or empty",
		})
	}

	keywords := getStringSlice(args, "keywords")

	// The embedded text is the description plus keywords, matching the
	// routable surface a query is matched against.
	routable := description
	if len(keywords) > 0 {
		routable += " " + strings.Join(keywords, " ")
	}

	vector, err := s.embedder.Embed(ctx, routable)
	if err != nil {
		if errors.Is(err, types.ErrEmbeddingUnavailable) {
			return nil, newMCPError(ErrorCodeEmbeddingUnavailable, "embedding service unavailable", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return nil, newMCPError(ErrorCodeInternalError, "embedding failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	cmd := &backend.Command{
		SkillName:         skillName,
		CommandName:       commandName,
		Description:       description,
		Keywords:          keywords,
		InputSchemaDigest: getStringDefault(args, "input_schema_digest", ""),
		ModelTag:          getStringDefault(args, "model_tag", ""),
		Embedding:         vector,
	}

	if err := s.backend.UpsertCommand(ctx, collection, cmd); err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "command registration failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Stored data changed under the collection, so cached rankings for it
	// are stale.
	invalidated := s.router.Cache().InvalidateCollection(collection)

	response := map[string]interface{}{
		"registered":          true,
		"collection":          collection,
		"skill_name":          skillName,
		"command_name":        commandName,
		"embedding_dims":      len(vector),
		"cache_invalidations": invalidated,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleInvalidateCollection handles the invalidate_collection tool invocation
func (s *Server) handleInvalidateCollection(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	collection, ok := args["collection"].(string)
	if !ok || collection == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "collection parameter is required", map[string]interface{}{
			"param":  "collection",
			"reason": "missing or empty",
		})
	}

	removed := s.router.Cache().InvalidateCollection(collection)

	response := map[string]interface{}{
		"collection":          collection,
		"cache_invalidations": removed,
	}

	if getBoolDefault(args, "drop_commands", false) {
		err := s.backend.DeleteCollection(ctx, collection)
		switch {
		case errors.Is(err, types.ErrCollectionNotFound):
			response["commands_dropped"] = false
			response["message"] = "collection has no stored commands"
		case err != nil:
			return nil, newMCPError(ErrorCodeInternalError, "failed to delete collection", map[string]interface{}{
				"error": err.Error(),
			})
		default:
			response["commands_dropped"] = true
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleCacheStats handles the cache_stats tool invocation
func (s *Server) handleCacheStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hits, misses := s.router.Cache().Stats()

	response := map[string]interface{}{
		"hits":    hits,
		"misses":  misses,
		"entries": s.router.Cache().Len(),
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a number parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	if val, ok := args[key].(float64); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a string-array parameter, skipping non-string items
func getStringSlice(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
