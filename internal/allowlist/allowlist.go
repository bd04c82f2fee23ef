package allowlist

import (
	"strings"

	"go.uber.org/zap"
)

// Checker decides whether a sender address belongs to an allowed domain.
// An empty list allows everyone.
type Checker struct {
	domains map[string]struct{}
	logger  *zap.Logger
}

// NewChecker creates a checker over the given domains
func NewChecker(domains []string, logger *zap.Logger) *Checker {
	normalized := make(map[string]struct{}, len(domains))
	for _, domain := range domains {
		d := strings.ToLower(strings.TrimSpace(domain))
		if d != "" {
			normalized[d] = struct{}{}
		}
	}

	if len(normalized) > 0 {
		logger.Info("Initialized sender allow-list", zap.Int("domain_count", len(normalized)))
	}

	return &Checker{
		domains: normalized,
		logger:  logger,
	}
}

// Enabled reports whether any domain restriction is configured
func (c *Checker) Enabled() bool {
	return len(c.domains) > 0
}

// Allows reports whether from is permitted; subdomains of an allowed domain match
func (c *Checker) Allows(from string) bool {
	if !c.Enabled() {
		return true
	}

	at := strings.LastIndexByte(from, '@')
	if at < 0 || at == len(from)-1 {
		return false
	}
	domain := strings.ToLower(strings.Trim(from[at+1:], "> "))

	for d := domain; d != ""; {
		if _, ok := c.domains[d]; ok {
			return true
		}
		dot := strings.IndexByte(d, '.')
		if dot < 0 {
			break
		}
		d = d[dot+1:]
	}

	c.logger.Debug("Sender domain not allowed", zap.String("domain", domain))
	return false
}
