package auth

import (
	"strings"

	"marketslip/internal/platform/config"
	liststrings "marketslip/pkg/platform/strings"
)

// Locator yields the ordered auth service base URLs to try: the primary URL,
// the internal URL, then the well-known fallback hosts. Unset bases are
// skipped and repeats keep their first position.
type Locator struct {
	primary   string
	internal  string
	fallbacks []string
}

// NewLocator builds a Locator from the auth configuration.
func NewLocator(cfg config.Auth) *Locator {
	return &Locator{
		primary:   cfg.URL,
		internal:  cfg.InternalURL,
		fallbacks: append([]string(nil), cfg.FallbackHosts...),
	}
}

// Candidates returns the full URLs for path in priority order.
func (l *Locator) Candidates(path string) []string {
	bases := make([]string, 0, len(l.fallbacks)+2)
	bases = append(bases, normalizeBase(l.primary), normalizeBase(l.internal))
	for _, fb := range l.fallbacks {
		bases = append(bases, normalizeBase(fb))
	}
	bases = liststrings.DedupeAndTrim(bases)

	urls := make([]string, 0, len(bases))
	for _, base := range bases {
		urls = append(urls, base+path)
	}
	return urls
}

func normalizeBase(base string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/")
}
