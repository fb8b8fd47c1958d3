// ABOUTME: Sanitizes post-authentication "next" targets to internal allow-listed paths
// ABOUTME: Builds the auth entry and private home URLs that carry a safe next parameter

package auth

import (
	"net/url"
	"strings"
)

// allowedNextPrefixes are the path trees a "next" parameter may point into.
var allowedNextPrefixes = []string{
	"/private",
	"/en/portability",
	"/en/bp-simulator",
	"/en",
}

// nextAliases maps legacy or shorthand paths to their canonical form.
var nextAliases = map[string]string{
	"/portability":  "/en/portability",
	"/bp-simulator": "/en/bp-simulator",
}

// SafeNext returns raw normalized to an internal, allow-listed path, or ""
// when raw is empty or could send the browser elsewhere.
func SafeNext(raw string) string {
	next := strings.TrimSpace(raw)
	if next == "" {
		return ""
	}

	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return ""
	}
	if strings.Contains(next, "://") || strings.Contains(next, `\`) {
		return ""
	}

	path, rest := splitPath(next)
	path = normalizeNextPath(path)

	for _, prefix := range allowedNextPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return path + rest
		}
	}
	return ""
}

// splitPath separates the path from a trailing query string or fragment.
func splitPath(s string) (path, rest string) {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		return s[:i], s[i:]
	}
	return s, ""
}

func normalizeNextPath(path string) string {
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	for alias, canonical := range nextAliases {
		if path == alias || strings.HasPrefix(path, alias+"/") {
			return canonical + strings.TrimPrefix(path, alias)
		}
	}
	return path
}

// withNext appends a sanitized next parameter to base. Unsafe values are dropped.
func withNext(base, next string) string {
	safe := SafeNext(next)
	if safe == "" {
		return base
	}
	return base + "?next=" + url.QueryEscape(safe)
}

// AuthURL returns the authentication entry URL that returns the user to next.
func AuthURL(authPath, next string) string {
	return withNext(authPath, next)
}

// HomeURL returns the non-privileged landing URL, keeping next for context.
func HomeURL(homePath, next string) string {
	return withNext(homePath, next)
}
