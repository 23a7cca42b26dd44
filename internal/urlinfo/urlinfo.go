// Package urlinfo parses absolute HTTP(S) URLs into the resolved form the
// rest of httpcore needs: a scheme, a host, a non-empty port, a path+query,
// and the origin triple that partitions the connection pool. Parse rejects
// relative URLs (spec.md §4.1); ResolveLocation, which the executor calls
// while following redirects, resolves a path-only Location against a base.
package urlinfo

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"httpcore/internal/herr"
)

// Origin is the (scheme, host, port) triple that partitions the connection
// pool. Two requests share a pool iff their Origins are byte-for-byte equal.
type Origin struct {
	Scheme string
	Host   string
	Port   string
}

func (o Origin) String() string { return o.Scheme + "://" + o.Host + ":" + o.Port }

// Info is the resolved form of an absolute URL.
type Info struct {
	Scheme     string
	Host       string
	Port       string
	PathQuery  string
	IsSecure   bool
	UserInfo   string // "" if absent
	HasUserInfo bool
}

func (i Info) Origin() Origin { return Origin{Scheme: i.Scheme, Host: i.Host, Port: i.Port} }

// String renders Info back into an absolute URL string, used to build the
// Location header resolution and the redirect chain entries.
func (i Info) String() string {
	b := strings.Builder{}
	b.WriteString(i.Scheme)
	b.WriteString("://")
	if i.HasUserInfo {
		b.WriteString(i.UserInfo)
		b.WriteByte('@')
	}
	b.WriteString(i.Host)
	if !isDefaultPort(i.Scheme, i.Port) {
		b.WriteByte(':')
		b.WriteString(i.Port)
	}
	b.WriteString(i.PathQuery)
	return b.String()
}

func defaultPort(scheme string) string {
	if scheme == "https" {
		return "443"
	}
	return "80"
}

func isDefaultPort(scheme, port string) bool { return port == defaultPort(scheme) }

// Parse parses an absolute URL string into Info. It fails with
// herr.KindInvalidURL when the scheme is not http/https, the host is empty,
// or the port is syntactically invalid.
func Parse(raw string) (Info, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Info{}, herr.New(herr.KindInvalidURL, "parse url", errors.Wrap(err, raw))
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return Info{}, herr.New(herr.KindInvalidURL, "parse url",
			errors.Errorf("unsupported scheme %q in %q", u.Scheme, raw))
	}
	if u.Host == "" {
		return Info{}, herr.New(herr.KindInvalidURL, "parse url",
			errors.Errorf("missing host in %q", raw))
	}

	host := u.Hostname()
	if host == "" {
		return Info{}, herr.New(herr.KindInvalidURL, "parse url",
			errors.Errorf("empty host in %q", raw))
	}

	port := u.Port()
	if port == "" {
		port = defaultPort(scheme)
	} else if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return Info{}, herr.New(herr.KindInvalidURL, "parse url",
			errors.Wrapf(err, "invalid port %q in %q", port, raw))
	}

	pathQuery := u.EscapedPath()
	if pathQuery == "" {
		pathQuery = "/"
	}
	if u.RawQuery != "" {
		pathQuery += "?" + u.RawQuery
	}

	info := Info{
		Scheme:    scheme,
		Host:      host,
		Port:      port,
		PathQuery: pathQuery,
		IsSecure:  scheme == "https",
	}
	if u.User != nil {
		info.HasUserInfo = true
		info.UserInfo = u.User.String()
	}

	return info, nil
}

// ParseProxyURL parses the Config proxy_url option (spec.md §3). Only plain
// HTTP forward-proxying is implemented: the proxy itself must be an
// http:// endpoint, reached with an absolute-URI request line (RFC 9112
// §3.2.2). A socks5:// proxy or https:// proxy endpoint is rejected here,
// loudly, rather than silently dialing the target directly.
func ParseProxyURL(raw string) (Info, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Info{}, herr.New(herr.KindInvalidURL, "parse proxy url", errors.Wrap(err, raw))
	}
	if scheme := strings.ToLower(u.Scheme); scheme != "http" {
		return Info{}, herr.New(herr.KindInvalidURL, "parse proxy url",
			errors.Errorf("proxy scheme %q is not supported: only a plain http:// proxy is implemented (CONNECT tunneling for https proxies and SOCKS5 proxies are not)", u.Scheme))
	}
	return Parse(raw)
}

// ResolveLocation resolves a redirect's Location header against the origin
// that produced it, per spec.md §4.7: a path-only Location (starting with
// "/") is resolved against the current scheme/host/port; otherwise Location
// is taken as an already-absolute URL.
func ResolveLocation(base Info, location string) (Info, error) {
	if location == "" {
		return Info{}, herr.New(herr.KindProtocol, "resolve redirect",
			errors.New("empty Location header"))
	}
	if strings.HasPrefix(location, "/") {
		abs := base.Scheme + "://" + base.Host
		if !isDefaultPort(base.Scheme, base.Port) {
			abs += ":" + base.Port
		}
		return Parse(abs + location)
	}
	return Parse(location)
}
