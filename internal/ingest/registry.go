package ingest

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed config/sites.yaml
var sitesYAML embed.FS

// Registry holds the scraping profiles for known sites plus the default used
// for everything else.
type Registry struct {
	Default SiteProfile   `yaml:"default"`
	Sites   []SiteProfile `yaml:"sites"`
}

// FetchConfig defines HTTP fetching configuration for a site.
type FetchConfig struct {
	TimeoutSeconds int     `yaml:"timeout_seconds,omitempty"` // Default: 30
	MaxRetries     int     `yaml:"max_retries,omitempty"`     // Default: 3
	RateLimitRPS   float64 `yaml:"rate_limit_rps,omitempty"`  // Requests per second, default: 1.0
	ProxyURL       string  `yaml:"proxy_url,omitempty"`
	AcceptLanguage string  `yaml:"accept_language,omitempty"` // e.g., "es-PE,es;q=0.9,en;q=0.8"
}

// SiteProfile tells the page extractor where opportunities live on a site.
type SiteProfile struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Domains []string `yaml:"domains,omitempty"`
	Client  string   `yaml:"client,omitempty"` // Fixed client name for single-agency portals

	Fetch     FetchConfig    `yaml:"fetch,omitempty"`
	Selectors SelectorConfig `yaml:"selectors,omitempty"`

	// PDFDeadline reads the first linked PDF when no deadline is on the page.
	PDFDeadline bool `yaml:"pdf_deadline,omitempty"`
	MaxItems    int  `yaml:"max_items,omitempty"`
}

// SelectorConfig holds CSS selectors relative to each container match.
type SelectorConfig struct {
	Container   string `yaml:"container,omitempty"` // CSS selector for the list item wrapper
	Title       string `yaml:"title,omitempty"`
	Link        string `yaml:"link,omitempty"`
	LinkAttr    string `yaml:"link_attr,omitempty"` // Attribute to extract link from (default: href)
	Description string `yaml:"description,omitempty"`
	Client      string `yaml:"client,omitempty"`
	Location    string `yaml:"location,omitempty"`
	Budget      string `yaml:"budget,omitempty"`
	Deadline    string `yaml:"deadline,omitempty"`
	Published   string `yaml:"published,omitempty"`
	Status      string `yaml:"status,omitempty"`
	Tags        string `yaml:"tags,omitempty"`
}

// LoadRegistry reads the embedded sites.yaml. When path is set, that file is
// read instead.
func LoadRegistry(path string) (*Registry, error) {
	var (
		data []byte
		err  error
	)
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = sitesYAML.ReadFile("config/sites.yaml")
	}
	if err != nil {
		return nil, fmt.Errorf("read site registry: %w", err)
	}
	return ParseRegistry(data)
}

// ParseRegistry decodes a registry document. Environment variables such as
// ${PROXY_URL} are expanded first.
func ParseRegistry(data []byte) (*Registry, error) {
	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, fmt.Errorf("parse site registry: %w", err)
	}
	for i := range reg.Sites {
		for j, d := range reg.Sites[i].Domains {
			reg.Sites[i].Domains[j] = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
		}
	}
	return &reg, nil
}

// ProfileFor returns the profile whose domain matches the URL's host or one
// of its parents, or the default profile.
func (r *Registry) ProfileFor(rawURL string) SiteProfile {
	if r == nil {
		return SiteProfile{ID: "default"}
	}
	host := strings.TrimPrefix(extractDomain(rawURL), "www.")
	if host != "" {
		for _, site := range r.Sites {
			for _, d := range site.Domains {
				if host == d || strings.HasSuffix(host, "."+d) {
					return site
				}
			}
		}
	}
	return r.Default
}
