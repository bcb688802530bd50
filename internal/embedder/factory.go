package embedder

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variables consulted by NewFromEnv.
const (
	EnvRPCHost   = "SKILLROUTE_EMBED_RPC_HOST"
	EnvRPCPorts  = "SKILLROUTE_EMBED_RPC_PORTS"
	EnvHTTPURL   = "SKILLROUTE_EMBED_HTTP_URL"
	EnvCachePath = "SKILLROUTE_EMBED_CACHE_PATH"
)

// NewFromEnv creates a Retriever configured from environment variables:
//
//	SKILLROUTE_EMBED_RPC_HOST    local daemon host (default 127.0.0.1)
//	SKILLROUTE_EMBED_RPC_PORTS   comma-separated probe ports (default 11434,8089)
//	SKILLROUTE_EMBED_HTTP_URL    batch-embed fallback base URL (optional)
//	SKILLROUTE_EMBED_CACHE_PATH  persisted record path (default ~/.skillroute/embedding.json)
func NewFromEnv() (*Retriever, error) {
	cfg := Config{
		RPCHost:     os.Getenv(EnvRPCHost),
		HTTPBaseURL: strings.TrimRight(os.Getenv(EnvHTTPURL), "/"),
		CachePath:   os.Getenv(EnvCachePath),
	}

	if raw := os.Getenv(EnvRPCPorts); raw != "" {
		ports, err := parsePorts(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvRPCPorts, err)
		}
		cfg.RPCPorts = ports
	}

	return New(cfg)
}

func parsePorts(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	ports := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid port %q", p)
		}
		ports = append(ports, port)
	}
	if len(ports) == 0 {
		return nil, fmt.Errorf("no ports given")
	}
	return ports, nil
}
