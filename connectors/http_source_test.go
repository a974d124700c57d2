package connectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shashank-sharma/flowforge/pkg/connector"
	"github.com/shashank-sharma/flowforge/pkg/envelope"
)

func TestHTTPSourceDecodesJSONArrayResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":1},{"id":2}]`))
	}))
	defer srv.Close()

	c := NewHTTPSource()
	cfg := connector.Config{"url": srv.URL, "blockInternalIPs": false}
	if err := c.Configure(cfg); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	out, err := c.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	env, err := envelope.FromMap(out)
	if err != nil {
		t.Fatalf("FromMap failed: %v", err)
	}
	if len(env.Data) != 2 {
		t.Fatalf("expected 2 decoded records, got %d", len(env.Data))
	}
}

func TestHTTPSourceRejectsNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPSource()
	if err := c.Configure(connector.Config{"url": srv.URL, "blockInternalIPs": false}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	if _, err := c.Execute(context.Background(), nil); err == nil {
		t.Error("expected an error for a 500 response")
	}
}

func TestHTTPSourceConfigureBlocksInternalIPsByDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := NewHTTPSource()
	if err := c.Configure(connector.Config{"url": srv.URL}); err == nil {
		t.Error("expected Configure to reject a loopback URL when blockInternalIPs defaults to true")
	}
}

func TestHTTPSourceConfigureRejectsNonHTTPScheme(t *testing.T) {
	c := NewHTTPSource()
	if err := c.Configure(connector.Config{"url": "ftp://example.com/data", "blockInternalIPs": false}); err == nil {
		t.Error("expected Configure to reject a non-http(s) scheme")
	}
}

func TestHTTPSourceConfigureEnforcesAllowedURLPatterns(t *testing.T) {
	c := NewHTTPSource()
	cfg := connector.Config{
		"url":                "http://example.com/data",
		"blockInternalIPs":   false,
		"allowedURLPatterns": []interface{}{"trusted.example.com"},
	}
	if err := c.Configure(cfg); err == nil {
		t.Error("expected Configure to reject a hostname outside allowedURLPatterns")
	}
}

func TestHTTPSourceConfigureRejectsAllowlistSuffixBypass(t *testing.T) {
	cases := []string{
		"http://api.example.com.evil.net/data",
		"http://notapi.example.com/data",
	}
	for _, u := range cases {
		c := NewHTTPSource()
		cfg := connector.Config{
			"url":                u,
			"blockInternalIPs":   false,
			"allowedURLPatterns": []interface{}{"api.example.com"},
		}
		if err := c.Configure(cfg); err == nil {
			t.Errorf("expected Configure to reject %q as an allowlist bypass", u)
		}
	}
}

func TestHTTPSourceConfigureAllowsExactAndSubdomainMatches(t *testing.T) {
	cases := []string{
		"http://api.example.com/data",
		"http://internal.api.example.com/data",
	}
	for _, u := range cases {
		c := NewHTTPSource()
		cfg := connector.Config{
			"url":                u,
			"blockInternalIPs":   false,
			"allowedURLPatterns": []interface{}{"api.example.com"},
		}
		if err := c.Configure(cfg); err != nil {
			t.Errorf("expected Configure to accept %q, got: %v", u, err)
		}
	}
}
