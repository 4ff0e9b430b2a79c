package capabilities

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/parallax-ai/forkcache/providers"
)

//go:embed catalog_backup.json
var bundledCatalog []byte

// CatalogURLEnv is the env var operators set to override the capability
// catalog source. Useful for air-gapped deployments or when a provider
// changes limits faster than releases ship.
const CatalogURLEnv = "FORKCACHE_CAPABILITY_CATALOG_URL"

const defaultCatalogURL = "https://raw.githubusercontent.com/parallax-ai/forkcache/main/capabilities/catalog.json"

// Override is a partial capability record from a runtime catalog. nil fields
// leave the static value untouched. Overrides may widen or narrow fields;
// the result always passes the provider safety clamp afterwards.
type Override struct {
	Supported           *bool           `json:"supported,omitempty"`
	MinTokens           *int            `json:"min_tokens,omitempty"`
	MaxBreakpoints      *int            `json:"max_breakpoints,omitempty"`
	SupportsTTL         *bool           `json:"supports_ttl,omitempty"`
	TTLValues           []providers.TTL `json:"ttl_values,omitempty"`
	SupportsToolCaching *bool           `json:"supports_tool_caching,omitempty"`
	Automatic           *bool           `json:"automatic,omitempty"`
}

// apply merges the override onto caps, field by field.
func (o Override) apply(caps Capabilities) Capabilities {
	if o.Supported != nil {
		caps.Supported = *o.Supported
	}
	if o.MinTokens != nil {
		caps.MinTokens = *o.MinTokens
	}
	if o.MaxBreakpoints != nil {
		caps.MaxBreakpoints = *o.MaxBreakpoints
	}
	if o.SupportsTTL != nil {
		caps.SupportsTTL = *o.SupportsTTL
	}
	if o.TTLValues != nil {
		caps.TTLValues = o.TTLValues
	}
	if o.SupportsToolCaching != nil {
		caps.SupportsToolCaching = *o.SupportsToolCaching
	}
	if o.Automatic != nil {
		caps.Automatic = *o.Automatic
	}
	return caps
}

// Source is a read-only override lookup. Implementations must be safe for
// concurrent readers.
type Source interface {
	Lookup(provider providers.Provider, model string) (Override, bool)
}

// Catalog is a flat "provider/model" → Override map loaded from JSON. It
// implements Source.
type Catalog map[string]Override

// Lookup implements Source.
func (c Catalog) Lookup(provider providers.Provider, model string) (Override, bool) {
	o, ok := c[string(provider)+"/"+model]
	return o, ok
}

// LoadCatalog fetches the override catalog from a remote URL (1s timeout).
// On any failure it falls back to the embedded catalog_backup.json.
// Resolution never fails due to catalog unavailability.
func LoadCatalog() (Catalog, error) {
	url := os.Getenv(CatalogURLEnv)
	if url == "" {
		url = defaultCatalogURL
	}

	if data, err := fetchRemote(url); err == nil {
		if c, err := parseCatalog(data); err == nil {
			return c, nil
		}
		// Remote fetched but unparseable; fall through to the bundled copy.
	}
	return parseCatalog(bundledCatalog)
}

func fetchRemote(url string) ([]byte, error) {
	client := &http.Client{Timeout: time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog fetch: HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func parseCatalog(data []byte) (Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("catalog parse: %w", err)
	}
	return c, nil
}

// ---------------------------------------------------------------- Resolver --

// Resolver combines the static tables with an optional override Source.
// A nil source resolves purely from the static tables.
type Resolver struct {
	source Source
}

// NewResolver creates a Resolver backed by the given override source.
// source may be nil.
func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// Resolve returns the effective capability record for (provider, model):
// static lookup, overrides merged on top, then the provider safety clamp.
// The clamp runs unconditionally so a drifted catalog can never widen a
// record past real provider limits.
func (r *Resolver) Resolve(provider providers.Provider, model string) Capabilities {
	caps := Lookup(provider, model)
	if r != nil && r.source != nil {
		if o, ok := r.source.Lookup(provider, model); ok {
			caps = o.apply(caps)
		}
	}
	return clamp(provider, caps)
}
