package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// routeQueryTool returns the tool definition for route_query
func routeQueryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "route_query",
		Description: "Route a natural-language query to ranked skill-command candidates with confidence labels",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"collection": map[string]interface{}{
					"type":        "string",
					"description": "Command collection to route against",
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Free-form query text to route",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of candidates to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"threshold": map[string]interface{}{
					"type":        "number",
					"description": "Initial minimum fused score; lowered automatically on empty retries (0.0-1.0)",
					"default":     0.0,
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"profile": map[string]interface{}{
					"type":        "string",
					"description": "Named confidence profile to apply (e.g. precision, recall)",
					"default":     "precision",
				},
				"use_cache": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, serve and populate the result cache",
					"default":     true,
				},
			},
			Required: []string{"collection", "query"},
		},
	}
}

// registerCommandTool returns the tool definition for register_command
func registerCommandTool() mcp.Tool {
	return mcp.Tool{
		Name:        "register_command",
		Description: "Register or refresh one skill command in a collection, embedding its routable text",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"collection": map[string]interface{}{
					"type":        "string",
					"description": "Command collection to register into",
				},
				"skill_name": map[string]interface{}{
					"type":        "string",
					"description": "Owning skill name",
				},
				"command_name": map[string]interface{}{
					"type":        "string",
					"description": "Command name within the skill",
				},
				"description": map[string]interface{}{
					"type":        "string",
					"description": "What the command does; the primary embedded text",
				},
				"keywords": map[string]interface{}{
					"type":        "array",
					"description": "Extra routable keywords",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"input_schema_digest": map[string]interface{}{
					"type":        "string",
					"description": "Digest of the command's input schema, echoed back in candidates",
				},
				"model_tag": map[string]interface{}{
					"type":        "string",
					"description": "Embedding model tag to record alongside the vector",
				},
			},
			Required: []string{"collection", "skill_name", "command_name", "description"},
		},
	}
}

// invalidateCollectionTool returns the tool definition for invalidate_collection
func invalidateCollectionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "invalidate_collection",
		Description: "Drop cached routing results for a collection, optionally deleting its stored commands",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"collection": map[string]interface{}{
					"type":        "string",
					"description": "Collection whose cached results are dropped",
				},
				"drop_commands": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, also delete the collection's stored commands",
					"default":     false,
				},
			},
			Required: []string{"collection"},
		},
	}
}

// cacheStatsTool returns the tool definition for cache_stats
func cacheStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "cache_stats",
		Description: "Report result-cache hit/miss counters and entry count",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
