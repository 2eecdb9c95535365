package registry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultNPMRegistry is the public npm registry.
const DefaultNPMRegistry = "https://registry.npmjs.org"

// PackageInfo is the release metadata pkgscout needs for one package.
type PackageInfo struct {
	// Time maps version to publish timestamp (RFC3339)
	Time       map[string]string
	Deprecated bool
}

// PublishDate returns the publish time of version, or the zero time when the
// version is unknown or its timestamp cannot be parsed.
func (p *PackageInfo) PublishDate(version string) time.Time {
	if p == nil {
		return time.Time{}
	}
	raw, ok := p.Time[version]
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// NPMClient reads package documents from an npm-compatible registry.
type NPMClient struct {
	baseURL string
	fetcher HTTPFetcher
}

// NewNPMClient creates an NPMClient with real HTTP for production use. An
// empty baseURL selects the public registry.
func NewNPMClient(baseURL string, timeout time.Duration) *NPMClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}

	return NewNPMClientWithFetcher(baseURL, NewRealHTTPFetcher(client))
}

// NewNPMClientWithFetcher creates an NPMClient with injectable HTTP for testing
func NewNPMClientWithFetcher(baseURL string, fetcher HTTPFetcher) *NPMClient {
	if baseURL == "" {
		baseURL = DefaultNPMRegistry
	}
	return &NPMClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		fetcher: fetcher,
	}
}

// BaseURL returns the registry root requests are sent to.
func (c *NPMClient) BaseURL() string { return c.baseURL }

// PackageInfo fetches the publish times of every version of name and whether
// the version tagged latest is deprecated.
func (c *NPMClient) PackageInfo(ctx context.Context, name string) (*PackageInfo, error) {
	// Scoped packages are requested as @scope%2Fname
	pkgURL := fmt.Sprintf("%s/%s", c.baseURL, url.PathEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pkgURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", name, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.fetcher.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch package metadata: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("npm registry returned status %d for %s", resp.StatusCode, name)
	}

	var doc struct {
		DistTags map[string]string `json:"dist-tags"`
		Versions map[string]struct {
			Deprecated string `json:"deprecated"`
		} `json:"versions"`
		Time map[string]string `json:"time"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode package metadata: %w", err)
	}

	info := &PackageInfo{Time: doc.Time}
	if info.Time == nil {
		info.Time = map[string]string{}
	}
	if latest, ok := doc.DistTags["latest"]; ok {
		info.Deprecated = doc.Versions[latest].Deprecated != ""
	}
	return info, nil
}
