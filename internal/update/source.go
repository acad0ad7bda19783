package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// maxFeedSize bounds how much of a feed response is read.
const maxFeedSize = 16 << 20

// FeedRequest identifies the running application to the feed.
type FeedRequest struct {
	Channel        string
	AppID          string
	CurrentVersion string
}

// Source serves a release feed and the packages it lists.
type Source interface {
	// Feed fetches and decodes the feed for req.Channel. Errors wrap
	// ErrFeedUnreachable or ErrFeedFormat.
	Feed(ctx context.Context, req FeedRequest) (*Feed, error)
	// Open streams the package fileName. The returned size is -1 when
	// unknown. Errors wrap ErrFeedUnreachable.
	Open(ctx context.Context, fileName string) (io.ReadCloser, int64, error)
	String() string
}

// NewSource returns the Source serving endpoint.
func NewSource(endpoint Endpoint, client *http.Client, userAgent string) Source {
	if endpoint.Kind().IsFile() {
		return &FileSource{dir: endpoint.dir}
	}
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPSource{base: endpoint.base, client: client, userAgent: userAgent}
}

// HTTPSource reads feeds from a static web host.
type HTTPSource struct {
	base      *url.URL
	client    *http.Client
	userAgent string
}

func (s *HTTPSource) String() string { return s.base.String() }

// Feed requests {base}/releases.<channel>.json?localVersion=<v>&id=<id>.
func (s *HTTPSource) Feed(ctx context.Context, req FeedRequest) (*Feed, error) {
	u := s.base.ResolveReference(&url.URL{Path: FeedName(req.Channel)})
	q := url.Values{}
	q.Set("localVersion", req.CurrentVersion)
	q.Set("id", req.AppID)
	u.RawQuery = q.Encode()

	resp, err := s.get(ctx, u.String())
	if err != nil {
		return nil, err
	}
	defer closeBody(resp.Body)

	feed, err := decodeFeed(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil && ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedUnreachable, ctx.Err())
	}
	return feed, err
}

// Open requests {base}/<fileName>.
func (s *HTTPSource) Open(ctx context.Context, fileName string) (io.ReadCloser, int64, error) {
	u := s.base.ResolveReference(&url.URL{Path: fileName})

	resp, err := s.get(ctx, u.String())
	if err != nil {
		return nil, 0, err
	}
	return resp.Body, resp.ContentLength, nil
}

func (s *HTTPSource) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create HTTP request: %v", ErrFeedUnreachable, err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedUnreachable, err)
	}

	if resp.StatusCode != http.StatusOK {
		closeBody(resp.Body)
		return nil, fmt.Errorf("%w: GET %s returned status %d", ErrFeedUnreachable, rawURL, resp.StatusCode)
	}
	return resp, nil
}

// FileSource reads feeds from a local or mounted directory.
type FileSource struct {
	dir string
}

func (s *FileSource) String() string { return s.dir }

// Feed reads <dir>/releases.<channel>.json.
func (s *FileSource) Feed(ctx context.Context, req FeedRequest) (*Feed, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedUnreachable, err)
	}

	f, err := os.Open(filepath.Join(s.dir, FeedName(req.Channel)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedUnreachable, err)
	}
	defer func() { _ = f.Close() }()

	return decodeFeed(io.LimitReader(f, maxFeedSize))
}

// Open opens <dir>/<fileName>.
func (s *FileSource) Open(ctx context.Context, fileName string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrFeedUnreachable, err)
	}

	f, err := os.Open(filepath.Join(s.dir, fileName))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrFeedUnreachable, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("%w: %v", ErrFeedUnreachable, err)
	}
	return f, info.Size(), nil
}

func decodeFeed(r io.Reader) (*Feed, error) {
	var feed Feed
	if err := json.NewDecoder(r).Decode(&feed); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty response", ErrFeedFormat)
		}
		return nil, fmt.Errorf("%w: %v", ErrFeedFormat, err)
	}
	return &feed, nil
}

func closeBody(body io.Closer) {
	if err := body.Close(); err != nil {
		log.Warnf("error closing response body: %v", err)
	}
}
