package capabilities

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/parallax-ai/forkcache/providers"
)

// TestCatalogBackupParseable verifies the embedded catalog_backup.json is
// valid JSON that unmarshals into a non-empty Catalog.
func TestCatalogBackupParseable(t *testing.T) {
	c, err := parseCatalog(bundledCatalog)
	if err != nil {
		t.Fatalf("catalog_backup.json failed to parse: %v", err)
	}
	if len(c) == 0 {
		t.Fatal("catalog_backup.json parsed to an empty catalog")
	}
}

// TestLoadCatalog_RemoteAndFallback tests remote loading and the embedded
// fallback on fetch failure.
func TestLoadCatalog_RemoteAndFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"anthropic/claude-test": {"supported": true, "min_tokens": 512}}`))
	}))
	defer srv.Close()

	t.Setenv(CatalogURLEnv, srv.URL)
	c, err := LoadCatalog()
	if err != nil {
		t.Fatalf("LoadCatalog() error: %v", err)
	}
	if _, ok := c.Lookup(providers.Anthropic, "claude-test"); !ok {
		t.Error("remote catalog entry missing")
	}

	// Unreachable URL falls back to the bundled copy without error.
	t.Setenv(CatalogURLEnv, "http://127.0.0.1:1/nope")
	c, err = LoadCatalog()
	if err != nil {
		t.Fatalf("LoadCatalog() fallback error: %v", err)
	}
	if len(c) == 0 {
		t.Error("fallback catalog is empty")
	}
}

// TestResolver_OverrideThenClamp tests that overrides merge onto the static
// record but can never widen it past provider hard limits.
func TestResolver_OverrideThenClamp(t *testing.T) {
	six := 6
	auto := true
	tool := true
	min := 512

	src := Catalog{
		"anthropic/claude-3-5-sonnet-20241022": Override{
			MinTokens:           &min,
			MaxBreakpoints:      &six,
			Automatic:           &auto,
			SupportsToolCaching: &tool,
		},
	}
	r := NewResolver(src)

	caps := r.Resolve(providers.Anthropic, "claude-3-5-sonnet-20241022")
	if caps.MinTokens != 512 {
		t.Errorf("MinTokens = %d, want overridden 512", caps.MinTokens)
	}
	if caps.MaxBreakpoints != 4 {
		t.Errorf("MaxBreakpoints = %d, want clamped 4", caps.MaxBreakpoints)
	}
	if caps.Automatic {
		t.Error("clamp must force anthropic non-automatic")
	}
	if caps.SupportsToolCaching {
		t.Error("clamp must force anthropic tool caching off")
	}
}

// TestResolver_DisableOverride tests that an override can narrow a record to
// unsupported and that the zeroing invariant then applies.
func TestResolver_DisableOverride(t *testing.T) {
	no := false
	src := Catalog{"openai/gpt-4o": Override{Supported: &no}}
	caps := NewResolver(src).Resolve(providers.OpenAI, "gpt-4o")
	if !reflect.DeepEqual(caps, Capabilities{}) {
		t.Errorf("disabled override not fully zeroed: %+v", caps)
	}
}

// TestResolver_NilSource tests pure static resolution.
func TestResolver_NilSource(t *testing.T) {
	caps := NewResolver(nil).Resolve(providers.Anthropic, "claude-3-5-sonnet-20241022")
	if !caps.Supported || caps.MaxBreakpoints != 4 {
		t.Errorf("nil-source resolve diverged from static lookup: %+v", caps)
	}
}
