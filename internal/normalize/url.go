// Package normalize implements the two text-normalization pipelines consumed
// by the dedupe strategies and the URL canonicalization both depend on.
package normalize

import (
	"net/url"
	"path"
	"sort"
	"strings"
)

var trackingQueryKeys = map[string]struct{}{
	"fbclid": {},
	"gclid":  {},
}

var wrapperHosts = map[string]struct{}{
	"t.me":        {},
	"telegram.me": {},
}

var wrapperPaths = map[string]struct{}{
	"/iv":        {},
	"/share":     {},
	"/share/url": {},
}

// CanonicalURL returns the canonical form of an HTTP(S) URL, or "" when the
// input is not safely URL-like. Canonicalization lowercases scheme and host,
// strips default ports and fragments, normalizes the path, removes tracking
// query parameters and re-encodes the remaining query sorted, and unwraps
// known link-wrapper hosts first.
func CanonicalURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	parsed, err := url.Parse(unwrapURL(trimmed))
	if err != nil {
		return ""
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return ""
	}
	hostname := strings.ToLower(parsed.Hostname())
	if hostname == "" {
		return ""
	}

	host := hostname
	if port := parsed.Port(); port != "" {
		defaultPort := (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
		if !defaultPort {
			host = host + ":" + port
		}
	}

	parsed.Scheme = scheme
	parsed.Host = host
	parsed.Fragment = ""
	parsed.Path = canonicalPath(parsed.Path)
	parsed.RawPath = ""
	parsed.RawQuery = canonicalQuery(parsed.Query())

	return parsed.String()
}

// URLDomain returns the lowercased hostname of a canonicalizable URL, or "".
func URLDomain(raw string) string {
	canonical := CanonicalURL(raw)
	if canonical == "" {
		return ""
	}
	parsed, err := url.Parse(canonical)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

func canonicalPath(p string) string {
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == "" {
		return "/"
	}
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		return cleaned + "/"
	}
	return cleaned
}

func canonicalQuery(values url.Values) string {
	type pair struct {
		key   string
		value string
	}

	kept := make([]pair, 0, len(values))
	for key, vals := range values {
		if isTrackingParam(key) {
			continue
		}
		for _, v := range vals {
			kept = append(kept, pair{key: key, value: v})
		}
	}
	if len(kept) == 0 {
		return ""
	}

	sort.Slice(kept, func(i, j int) bool {
		if kept[i].key != kept[j].key {
			return kept[i].key < kept[j].key
		}
		return kept[i].value < kept[j].value
	})

	var b strings.Builder
	for i, p := range kept {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	return b.String()
}

func isTrackingParam(key string) bool {
	lowered := strings.ToLower(key)
	if strings.HasPrefix(lowered, "utm_") {
		return true
	}
	_, ok := trackingQueryKeys[lowered]
	return ok
}

// unwrapURL extracts the wrapped target from known link-wrapper hosts,
// following at most two hops.
func unwrapURL(value string) string {
	candidate := value
	for hop := 0; hop < 2; hop++ {
		parsed, err := url.Parse(candidate)
		if err != nil {
			return candidate
		}
		if _, ok := wrapperHosts[strings.ToLower(parsed.Hostname())]; !ok {
			return candidate
		}
		if _, ok := wrapperPaths[parsed.Path]; !ok {
			return candidate
		}

		target := parsed.Query().Get("url")
		if target == "" {
			return candidate
		}
		if unescaped, err := url.QueryUnescape(target); err == nil {
			target = unescaped
		}
		candidate = target
	}
	return candidate
}
