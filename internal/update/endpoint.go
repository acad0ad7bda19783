package update

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/adamancini/hatch/internal/types"
)

// Endpoint is a parsed feed location: an http(s) base URL or a directory.
type Endpoint struct {
	kind types.SourceKind
	base *url.URL
	dir  string
}

// ParseEndpoint validates raw. Accepted forms are http://, https:// and
// file:// URLs and absolute directory paths.
func ParseEndpoint(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, fmt.Errorf("%w: feed endpoint is empty", ErrConfiguration)
	}

	if filepath.IsAbs(raw) {
		return Endpoint{kind: types.SourceKindFile, dir: filepath.Clean(raw)}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: invalid feed endpoint %q: %v", ErrConfiguration, raw, err)
	}
	if u.Scheme == "" {
		return Endpoint{}, fmt.Errorf("%w: feed endpoint %q has no scheme", ErrConfiguration, raw)
	}

	kind, err := types.ParseSourceKind(u.Scheme)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: feed endpoint %q: %v", ErrConfiguration, raw, err)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return Endpoint{}, fmt.Errorf("%w: feed endpoint %q must not carry a query or fragment", ErrConfiguration, raw)
	}

	if kind.IsFile() {
		path := u.Path
		if u.Host != "" && u.Host != "localhost" {
			return Endpoint{}, fmt.Errorf("%w: file endpoint %q names a remote host", ErrConfiguration, raw)
		}
		// file:///C:/feed
		if len(path) > 2 && path[0] == '/' && path[2] == ':' {
			path = path[1:]
		}
		path = filepath.FromSlash(path)
		if !filepath.IsAbs(path) {
			return Endpoint{}, fmt.Errorf("%w: file endpoint %q is not absolute", ErrConfiguration, raw)
		}
		return Endpoint{kind: kind, dir: filepath.Clean(path)}, nil
	}

	if u.Host == "" {
		return Endpoint{}, fmt.Errorf("%w: feed endpoint %q has no host", ErrConfiguration, raw)
	}
	if u.User != nil {
		return Endpoint{}, fmt.Errorf("%w: feed endpoint %q must not embed credentials", ErrConfiguration, raw)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return Endpoint{kind: kind, base: u}, nil
}

// Kind is the transport the endpoint needs.
func (e Endpoint) Kind() types.SourceKind { return e.kind }

func (e Endpoint) String() string {
	if e.kind.IsFile() {
		return e.dir
	}
	if e.base == nil {
		return ""
	}
	return e.base.String()
}

// FeedName is the feed document for channel.
func FeedName(channel string) string {
	return "releases." + channel + ".json"
}
