package normalizer

import (
	"net/url"
	"strings"
)

// trackingParamNames are analytics and click identifiers that never change
// what a link points at.
var trackingParamNames = map[string]bool{
	"fbclid":  true,
	"gclid":   true,
	"dclid":   true,
	"msclkid": true,
	"yclid":   true,
	"igshid":  true,
	"mc_cid":  true,
	"mc_eid":  true,
	"_ga":     true,
	"_gl":     true,
}

func isTrackingParam(name string, extra []string) bool {
	name = strings.ToLower(name)
	if trackingParamNames[name] || strings.HasPrefix(name, "utm_") {
		return true
	}
	for _, e := range extra {
		if strings.EqualFold(strings.TrimSpace(e), name) {
			return true
		}
	}
	return false
}

// CanonicalURL resolves rawURL against base and returns it with the scheme
// and host lowercased, the fragment removed and tracking query parameters
// dropped, along with any listed in ignoreParams. Remaining parameters are
// sorted. It reports false for links that do not point at a document,
// such as in-page anchors and javascript: URLs.
func CanonicalURL(rawURL, base string, ignoreParams ...string) (string, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" || strings.HasPrefix(rawURL, "#") {
		return "", false
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	switch strings.ToLower(u.Scheme) {
	case "javascript", "data", "about", "blob":
		return "", false
	}

	if base != "" && !u.IsAbs() {
		if baseURL, err := url.Parse(base); err == nil {
			u = baseURL.ResolveReference(u)
		}
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		values, err := url.ParseQuery(u.RawQuery)
		if err == nil {
			for name := range values {
				if isTrackingParam(name, ignoreParams) {
					values.Del(name)
				}
			}
			u.RawQuery = values.Encode()
		}
	}
	u.ForceQuery = false

	return u.String(), true
}
