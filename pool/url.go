package pool

import (
	"net/url"
	"strings"
	"sync"

	"github.com/IGLOU-EU/go-wildcard/v2"
	"go.uber.org/zap"
)

const urlCacheSize = 1000

// OriginPolicy decides which source URLs may be fetched. An empty origin list
// allows every http(s) URL. Origins are hostnames, optionally with wildcards
// such as "*.example.com".
type OriginPolicy struct {
	origins []string
	logger  *zap.Logger

	mu    sync.RWMutex
	cache map[string]*url.URL
}

func NewOriginPolicy(origins []string, logger *zap.Logger) *OriginPolicy {
	return &OriginPolicy{
		origins: origins,
		logger:  logger,
		cache:   make(map[string]*url.URL),
	}
}

// Allow reports whether rawURL may be fetched and returns its hostname.
func (p *OriginPolicy) Allow(rawURL string) (bool, string) {
	parsed, err := p.parse(rawURL)
	if err != nil {
		return false, ""
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false, ""
	}

	hostname := parsed.Hostname()
	if hostname == "" {
		return false, ""
	}
	if len(p.origins) == 0 {
		return true, hostname
	}

	for _, origin := range p.origins {
		if origin == hostname {
			p.logger.Debug("origin matched", zap.String("origin", origin), zap.String("hostname", hostname))
			return true, hostname
		}
	}

	for _, origin := range p.origins {
		if strings.Contains(origin, "*") && wildcard.Match(origin, hostname) {
			p.logger.Debug("origin matched", zap.String("origin", origin), zap.String("hostname", hostname))
			return true, hostname
		}
	}

	return false, hostname
}

func (p *OriginPolicy) parse(rawURL string) (*url.URL, error) {
	p.mu.RLock()
	parsed, ok := p.cache[rawURL]
	p.mu.RUnlock()
	if ok {
		return parsed, nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if len(p.cache) >= urlCacheSize {
		// clear when full, parsing is cheap enough to redo
		p.cache = make(map[string]*url.URL)
	}
	p.cache[rawURL] = parsed
	p.mu.Unlock()

	return parsed, nil
}
