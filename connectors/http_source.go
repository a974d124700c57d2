package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shashank-sharma/flowforge/pkg/connector"
	"github.com/shashank-sharma/flowforge/pkg/engineerrors"
	"github.com/shashank-sharma/flowforge/pkg/envelope"
)

// HTTPSourceID is the registry key for the http_source connector.
const HTTPSourceID = "http_source"

// defaultHTTPTimeout, defaultMaxRedirects and defaultMaxResponseBytes mirror
// the outbound-HTTP defaults the corpus uses for its own HTTP node executor.
const (
	defaultHTTPTimeout      = 30 * time.Second
	defaultMaxRedirects     = 5
	defaultMaxResponseBytes = 10 * 1024 * 1024
)

// HTTPSource performs a single bounded HTTP GET against an allow-listed URL
// and decodes the JSON response body into records (SPEC_FULL.md §4.2.1). It
// applies the same request-construction and response-size-limiting idiom the
// corpus uses for its own outbound HTTP node, plus SSRF-style hostname
// validation so a workflow author can't use it to probe internal addresses.
type HTTPSource struct {
	url                string
	blockInternalIPs   bool
	allowedURLPatterns []string
}

// NewHTTPSource constructs an unconfigured http_source instance.
func NewHTTPSource() connector.Connector {
	return &HTTPSource{blockInternalIPs: true}
}

func (h *HTTPSource) ID() string                  { return HTTPSourceID }
func (h *HTTPSource) Name() string                { return "HTTP Source" }
func (h *HTTPSource) Category() connector.Category { return connector.CategorySource }

func (h *HTTPSource) ConfigSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"url"},
		"properties": map[string]interface{}{
			"url":                map[string]interface{}{"type": "string"},
			"blockInternalIPs":   map[string]interface{}{"type": "boolean"},
			"allowedURLPatterns": map[string]interface{}{"type": "array"},
		},
	}
}

func (h *HTTPSource) Configure(cfg connector.Config) error {
	if err := connector.ValidateConfig(h.ID(), h.ConfigSchema(), cfg); err != nil {
		return err
	}
	u, _ := cfg["url"].(string)
	if u == "" {
		return engineerrors.Configuration(h.ID(), "url is required")
	}
	h.url = u

	if block, ok := cfg["blockInternalIPs"].(bool); ok {
		h.blockInternalIPs = block
	}
	if raw, ok := cfg["allowedURLPatterns"].([]interface{}); ok {
		for _, p := range raw {
			if s, ok := p.(string); ok {
				h.allowedURLPatterns = append(h.allowedURLPatterns, s)
			}
		}
	}

	if err := h.validateURL(h.url); err != nil {
		return engineerrors.Configuration(h.ID(), err.Error())
	}
	return nil
}

func (h *HTTPSource) Execute(ctx context.Context, _ map[string]interface{}) (map[string]interface{}, error) {
	client := &http.Client{
		Timeout: defaultHTTPTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= defaultMaxRedirects {
				return fmt.Errorf("too many redirects (max %d)", defaultMaxRedirects)
			}
			return h.validateURL(req.URL.String())
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, engineerrors.Execution(h.ID(), fmt.Errorf("building request: %w", err))
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, engineerrors.Execution(h.ID(), fmt.Errorf("HTTP request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, engineerrors.Execution(h.ID(), fmt.Errorf("HTTP request returned status %d", resp.StatusCode))
	}

	limited := io.LimitReader(resp.Body, defaultMaxResponseBytes)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, engineerrors.Execution(h.ID(), fmt.Errorf("reading response body: %w", err))
	}
	if int64(len(body)) == defaultMaxResponseBytes {
		oneByte := make([]byte, 1)
		if n, _ := resp.Body.Read(oneByte); n > 0 {
			return nil, engineerrors.Execution(h.ID(), fmt.Errorf("response exceeds %d byte limit", defaultMaxResponseBytes))
		}
	}

	records, err := decodeRecords(body)
	if err != nil {
		return nil, engineerrors.Execution(h.ID(), fmt.Errorf("decoding JSON response: %w", err))
	}

	env := envelope.New(records, envelope.InferSchema(records, h.ID()), h.ID(), HTTPSourceID, nil)
	return env.ToMap(), nil
}

// decodeRecords accepts either a JSON array of objects or a single JSON
// object, matching the shapes a plain REST endpoint typically returns.
func decodeRecords(body []byte) ([]envelope.Record, error) {
	var arr []map[string]interface{}
	if err := json.Unmarshal(body, &arr); err == nil {
		records := make([]envelope.Record, len(arr))
		for i, m := range arr {
			records[i] = envelope.Record(m)
		}
		return records, nil
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, err
	}
	return []envelope.Record{envelope.Record(obj)}, nil
}

// validateURL rejects non-http(s) schemes, missing hostnames, internal IPs
// (when blockInternalIPs is set) and hostnames outside allowedURLPatterns
// (when configured), mirroring the corpus's own isAllowedURL helper.
func (h *HTTPSource) validateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme %q: only http and https are allowed", parsed.Scheme)
	}
	if parsed.Hostname() == "" {
		return fmt.Errorf("URL must have a hostname")
	}
	if h.blockInternalIPs && isInternalHost(parsed.Hostname()) {
		return fmt.Errorf("access to internal/private IP addresses is blocked")
	}
	if len(h.allowedURLPatterns) > 0 && !hostnameAllowed(parsed.Hostname(), h.allowedURLPatterns) {
		return fmt.Errorf("URL hostname %q is not in the allowed list", parsed.Hostname())
	}
	return nil
}

// hostnameAllowed reports whether hostname exactly matches one of patterns,
// or is a subdomain of one (host ends in "."+pattern). A plain substring
// match would let "api.example.com.evil.net" or "notapi.example.com" slip
// through an allow-list entry of "api.example.com".
func hostnameAllowed(hostname string, patterns []string) bool {
	hostname = strings.ToLower(hostname)
	for _, pattern := range patterns {
		pattern = strings.ToLower(pattern)
		if hostname == pattern || strings.HasSuffix(hostname, "."+pattern) {
			return true
		}
	}
	return false
}

func isInternalHost(hostname string) bool {
	ips, err := net.LookupIP(hostname)
	if err != nil {
		return true
	}
	for _, ip := range ips {
		if isPrivateOrSpecialIP(ip) {
			return true
		}
	}
	return false
}

func isPrivateOrSpecialIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast() {
		return true
	}
	if ip4 := ip.To4(); ip4 != nil {
		if ip4[0] == 10 {
			return true
		}
		if ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31 {
			return true
		}
		if ip4[0] == 192 && ip4[1] == 168 {
			return true
		}
		if ip4[0] == 169 && ip4[1] == 254 {
			return true
		}
		return false
	}
	return len(ip) == 16 && (ip[0]&0xfe) == 0xfc
}

// OutputSchema cannot be derived without performing the request, so it
// reports an empty schema; the fields of an http_source node are known only
// from an executed response, for example via sample data.
func (h *HTTPSource) OutputSchema(_ *envelope.DataSchema) (envelope.DataSchema, error) {
	return envelope.DataSchema{}, nil
}

func (h *HTTPSource) ValidateInputSchema(_ *envelope.DataSchema) error { return nil }
