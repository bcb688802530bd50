package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Transport configuration
const (
	// Default local RPC probe targets. Both the modern and the legacy path
	// convention are tried per port, modern first.
	DefaultRPCHost = "127.0.0.1"

	RPCPathModern = "/api/v1/embed"
	RPCPathLegacy = "/embed"

	// ProbeWindow bounds the whole RPC candidate loop with one shared
	// wall-clock deadline, so N dead endpoints cannot stall for N timeouts.
	DefaultProbeWindow = 3 * time.Second

	// Backoff applied to an endpoint after a failed call.
	RPCBackoff  = 30 * time.Second
	HTTPBackoff = 60 * time.Second

	// DefaultHTTPTimeout is both the client timeout and the timeout hint
	// forwarded to the remote batch-embed operation.
	DefaultHTTPTimeout = 10 * time.Second
)

// DefaultRPCPorts are the ports a local embedding daemon is expected on,
// in preference order.
var DefaultRPCPorts = []int{11434, 8089}

// embedRequest is the wire format shared by both transports.
type embedRequest struct {
	Input []string `json:"input"`
	// TimeoutMS is honored by the HTTP batch endpoint only; the RPC daemon
	// ignores unknown fields.
	TimeoutMS int64 `json:"timeout_ms,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// rpcTransport probes local embedding daemon endpoints.
type rpcTransport struct {
	host        string
	ports       []int
	client      *http.Client
	probeWindow time.Duration
}

func newRPCTransport(host string, ports []int, probeWindow time.Duration) *rpcTransport {
	if host == "" {
		host = DefaultRPCHost
	}
	if len(ports) == 0 {
		ports = DefaultRPCPorts
	}
	if probeWindow <= 0 {
		probeWindow = DefaultProbeWindow
	}
	return &rpcTransport{
		host:  host,
		ports: ports,
		client: &http.Client{
			// Per-request cancellation comes from the shared probe
			// deadline on the context, not a per-call client timeout.
			Timeout: 0,
		},
		probeWindow: probeWindow,
	}
}

// candidates returns the static probe order: every port with the modern
// path, then every port with the legacy path.
func (t *rpcTransport) candidates() []Endpoint {
	eps := make([]Endpoint, 0, len(t.ports)*2)
	for _, path := range []string{RPCPathModern, RPCPathLegacy} {
		for _, port := range t.ports {
			eps = append(eps, Endpoint{
				Kind:    TransportRPC,
				Address: fmt.Sprintf("%s:%d", t.host, port),
				Path:    path,
			})
		}
	}
	return eps
}

func (t *rpcTransport) embed(ctx context.Context, ep Endpoint, text string) ([]float32, error) {
	url := "http://" + ep.Address + ep.Path
	return postEmbed(ctx, t.client, url, embedRequest{Input: []string{text}})
}

// httpTransport is the remote batch-embed fallback.
type httpTransport struct {
	baseURL string
	path    string
	timeout time.Duration
	client  *http.Client
}

func newHTTPTransport(baseURL string, timeout time.Duration) *httpTransport {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &httpTransport{
		baseURL: baseURL,
		path:    "/v1/embeddings",
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

func (t *httpTransport) endpoint() Endpoint {
	return Endpoint{Kind: TransportHTTP, Address: t.baseURL, Path: t.path}
}

func (t *httpTransport) embed(ctx context.Context, text string) ([]float32, error) {
	req := embedRequest{
		Input:     []string{text},
		TimeoutMS: t.timeout.Milliseconds(),
	}
	return postEmbed(ctx, t.client, t.baseURL+t.path, req)
}

// postEmbed performs one embed call and decodes the first vector.
func postEmbed(ctx context.Context, client *http.Client, url string, reqBody embedRequest) ([]float32, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embed error %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Data) == 0 {
		return nil, ErrEmptyResponse
	}
	vector := apiResp.Data[0].Embedding
	if len(vector) == 0 {
		return nil, ErrZeroDimension
	}
	return vector, nil
}
