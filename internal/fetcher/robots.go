package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/IshaanNene/igscrape/internal/types"
)

// RobotsManager fetches robots.txt through the shared fetcher and answers
// whether a URL may be fetched. Disabled by default; most IG sites publish
// reports under paths their robots.txt never mentions.
type RobotsManager struct {
	enabled bool
	agent   string
	fetcher Fetcher
	cache   map[string]*robotsData
	mu      sync.RWMutex
}

// robotsData holds parsed robots.txt rules for a host.
type robotsData struct {
	disallowed []string
	allowed    []string
	crawlDelay time.Duration
	fetchedAt  time.Time
}

// NewRobotsManager creates a RobotsManager. agent is matched against
// User-agent sections in addition to "*".
func NewRobotsManager(enabled bool, agent string, f Fetcher) *RobotsManager {
	return &RobotsManager{
		enabled: enabled,
		agent:   strings.ToLower(agent),
		fetcher: f,
		cache:   make(map[string]*robotsData),
	}
}

// IsAllowed checks if a URL is allowed by its host's robots.txt.
func (rm *RobotsManager) IsAllowed(ctx context.Context, u *url.URL) bool {
	if !rm.enabled || u == nil {
		return true
	}

	data := rm.getRobotsData(ctx, u.Scheme+"://"+u.Host)
	if data == nil {
		return true
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return data.allows(path)
}

// allows applies Allow rules before Disallow rules.
func (d *robotsData) allows(path string) bool {
	for _, pattern := range d.allowed {
		if matchRobotsPattern(pattern, path) {
			return true
		}
	}
	for _, pattern := range d.disallowed {
		if matchRobotsPattern(pattern, path) {
			return false
		}
	}
	return true
}

// CrawlDelay returns the crawl-delay for a host origin, if specified.
func (rm *RobotsManager) CrawlDelay(origin string) time.Duration {
	rm.mu.RLock()
	data, ok := rm.cache[origin]
	rm.mu.RUnlock()

	if !ok || data == nil {
		return 0
	}
	return data.crawlDelay
}

func (rm *RobotsManager) getRobotsData(ctx context.Context, origin string) *robotsData {
	rm.mu.RLock()
	data, ok := rm.cache[origin]
	rm.mu.RUnlock()
	if ok {
		return data
	}

	data = rm.fetchRobotsTxt(ctx, origin)

	rm.mu.Lock()
	rm.cache[origin] = data
	rm.mu.Unlock()
	return data
}

func (rm *RobotsManager) fetchRobotsTxt(ctx context.Context, origin string) *robotsData {
	req, err := types.NewRequest(origin + "/robots.txt")
	if err != nil {
		return nil
	}
	req.NoCache = true
	req.Timeout = 10 * time.Second

	resp, err := rm.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil
	}
	return parseRobotsTxt(string(resp.Body), rm.agent)
}

// parseRobotsTxt parses robots.txt content for "*" and agent.
func parseRobotsTxt(content, agent string) *robotsData {
	data := &robotsData{fetchedAt: time.Now()}
	inOurSection := false

	for _, line := range strings.Split(content, "\n") {
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			ua := strings.ToLower(value)
			inOurSection = ua == "*" || (agent != "" && strings.Contains(ua, agent))
		case "disallow":
			if inOurSection && value != "" {
				data.disallowed = append(data.disallowed, value)
			}
		case "allow":
			if inOurSection && value != "" {
				data.allowed = append(data.allowed, value)
			}
		case "crawl-delay":
			if inOurSection {
				var delay float64
				if _, err := fmt.Sscanf(value, "%f", &delay); err == nil {
					data.crawlDelay = time.Duration(delay * float64(time.Second))
				}
			}
		}
	}

	return data
}

// matchRobotsPattern checks if a URL path matches a robots.txt pattern.
// Supports * (any sequence) and $ (end of URL) wildcards.
func matchRobotsPattern(pattern, path string) bool {
	if pattern == "" {
		return false
	}

	endsWithDollar := strings.HasSuffix(pattern, "$")
	if endsWithDollar {
		pattern = pattern[:len(pattern)-1]
	}

	if strings.Contains(pattern, "*") {
		return matchWildcard(pattern, path, endsWithDollar)
	}

	if endsWithDollar {
		return path == pattern
	}
	return strings.HasPrefix(path, pattern)
}

func matchWildcard(pattern, path string, mustEnd bool) bool {
	parts := strings.Split(pattern, "*")
	pos := 0

	for i, part := range parts {
		if part == "" {
			continue
		}
		idx := strings.Index(path[pos:], part)
		if idx < 0 {
			return false
		}
		if i == 0 && idx != 0 {
			return false
		}
		pos += idx + len(part)
	}

	if mustEnd {
		return pos == len(path)
	}
	return true
}
