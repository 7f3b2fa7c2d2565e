package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrCloudflareNotConfigured = errors.New("cloudflare credentials not configured")

const cloudflareAPI = "https://api.cloudflare.com/client/v4"

// CloudflareIPSources are the published edge ranges.
var CloudflareIPSources = []string{
	"https://www.cloudflare.com/ips-v4",
	"https://www.cloudflare.com/ips-v6",
}

// DefaultCloudflareRanges is used until a refreshed list is loaded.
var DefaultCloudflareRanges = []string{
	"173.245.48.0/20", "103.21.244.0/22", "103.22.200.0/22", "103.31.4.0/22",
	"141.101.64.0/18", "108.162.192.0/18", "190.93.240.0/20", "188.114.96.0/20",
	"197.234.240.0/22", "198.41.128.0/17", "162.158.0.0/15", "104.16.0.0/13",
	"104.24.0.0/14", "172.64.0.0/13", "131.0.72.0/22",
	"2400:cb00::/32", "2606:4700::/32", "2803:f800::/32", "2405:b500::/32",
	"2405:8100::/32", "2a06:98c0::/29", "2c0f:f248::/32",
}

type CloudflareClient struct {
	Email   string
	Token   string
	ZoneID  string
	BaseURL string
	client  *http.Client
}

func NewCloudflareClient(email, token, zoneID string) *CloudflareClient {
	return &CloudflareClient{
		Email:   email,
		Token:   token,
		ZoneID:  zoneID,
		BaseURL: cloudflareAPI,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// PurgeEverything empties the zone's edge cache.
func (c *CloudflareClient) PurgeEverything(ctx context.Context) error {
	if c.Token == "" || c.ZoneID == "" {
		return ErrCloudflareNotConfigured
	}
	body, _ := json.Marshal(map[string]bool{"purge_everything": true})
	endpoint := c.BaseURL + "/zones/" + c.ZoneID + "/purge_cache"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Email != "" {
		req.Header.Set("X-Auth-Email", c.Email)
		req.Header.Set("X-Auth-Key", c.Token)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("purge cache: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Success bool `json:"success"`
		Errors  []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&result)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPStatusError{URL: endpoint, StatusCode: resp.StatusCode}
	}
	if !result.Success {
		msgs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("purge cache failed: %s", strings.Join(msgs, "; "))
	}
	log.Info().Str("zone", c.ZoneID).Msg("cloudflare cache purged")
	return nil
}

// IPRanges is a concurrency-safe set of prefixes.
type IPRanges struct {
	mu       sync.RWMutex
	prefixes []netip.Prefix
}

func NewIPRanges(cidrs []string) (*IPRanges, error) {
	r := &IPRanges{}
	if err := r.Replace(cidrs); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *IPRanges) Replace(cidrs []string) error {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(strings.TrimSpace(c))
		if err != nil {
			return fmt.Errorf("parse range %q: %w", c, err)
		}
		prefixes = append(prefixes, p)
	}
	r.mu.Lock()
	r.prefixes = prefixes
	r.mu.Unlock()
	return nil
}

// Contains reports whether ip (with or without a port) is in any range.
func (r *IPRanges) Contains(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		ap, perr := netip.ParseAddrPort(ip)
		if perr != nil {
			return false
		}
		addr = ap.Addr()
	}
	addr = addr.Unmap()
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

var (
	cloudflareRanges     *IPRanges
	cloudflareRangesOnce sync.Once
)

// GetCloudflareRanges returns the process-wide ranges, seeded from the
// built-in list.
func GetCloudflareRanges() *IPRanges {
	cloudflareRangesOnce.Do(func() {
		cloudflareRanges, _ = NewIPRanges(DefaultCloudflareRanges)
	})
	return cloudflareRanges
}

// ParseRangeList reads one CIDR per line, skipping blanks and # comments.
func ParseRangeList(data []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// LoadCloudflareRanges replaces the process-wide ranges with a saved file.
func LoadCloudflareRanges(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return GetCloudflareRanges().Replace(ParseRangeList(data))
}

// FetchCloudflareRanges downloads the current published ranges.
func FetchCloudflareRanges(ctx context.Context, sources []string) ([]string, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	var all []string
	for _, src := range sources {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", src, err)
		}
		var buf bytes.Buffer
		_, err = buf.ReadFrom(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &HTTPStatusError{URL: src, StatusCode: resp.StatusCode}
		}
		all = append(all, ParseRangeList(buf.Bytes())...)
	}
	if _, err := NewIPRanges(all); err != nil {
		return nil, err
	}
	return all, nil
}
