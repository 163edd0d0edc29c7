// Package routetable resolves (port, url) pairs to a configured route by
// longest matching URL prefix, the way RequestManager::resolve_url_path and
// ServerConfiguration::find_url_route_for_listening_port do in the original
// implementation.
package routetable

import (
	"strings"

	"github.com/webserv/webserv/internal/webconfig"
)

// Table holds the routes from a loaded configuration, ready for repeated
// lookups. It is built once at startup and never mutated, so it is safe to
// share by read-only reference across every connection the way spec §9
// calls for.
type Table struct {
	routes []webconfig.Route
}

// New builds a route Table from a configuration's route list, preserving
// configuration order for the tie-break rule in Find.
func New(routes []webconfig.Route) *Table {
	return &Table{routes: routes}
}

// Find resolves (port, url) to the best-matching route: among routes
// belonging to port whose url_path matches the query path (after the query
// string is stripped), the one with the longest url_path wins; ties are
// broken by configuration order.
func (t *Table) Find(port int, url string) *webconfig.Route {
	cleanPath := url
	if idx := strings.IndexByte(cleanPath, '?'); idx != -1 {
		cleanPath = cleanPath[:idx]
	}

	var best *webconfig.Route
	for i := range t.routes {
		route := &t.routes[i]
		if route.ServerListeningPort != port {
			continue
		}
		if !matches(route.URLPath, cleanPath) {
			continue
		}
		if best == nil || len(route.URLPath) > len(best.URLPath) {
			best = route
		}
	}

	return best
}

// matches implements the single-route matching rule from spec §4.3: exact
// match, prefix match when the route ends in '/', or prefix match guarded
// against accidentally matching a longer sibling segment (e.g. "/user"
// must not match "/users").
func matches(routePrefix, cleanURL string) bool {
	if cleanURL == routePrefix {
		return true
	}

	if strings.HasSuffix(routePrefix, "/") {
		return strings.HasPrefix(cleanURL, routePrefix)
	}

	if !strings.HasPrefix(cleanURL, routePrefix) {
		return false
	}

	return len(cleanURL) == len(routePrefix) || cleanURL[len(routePrefix)] == '/'
}
