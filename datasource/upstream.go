package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BeamlakAschalew/flixquest-betterplayer/commons"
	gocache "github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// DataSpec describes a range of a media source
type DataSpec struct {
	URL      string
	Key      string // content key, defaults to URL
	Headers  map[string]string
	Position int64
	Length   int64 // < 0 means unbounded
}

// GetKey returns the content key of the source
func (spec *DataSpec) GetKey() string {
	if len(spec.Key) > 0 {
		return spec.Key
	}
	return spec.URL
}

// IsNetworkURL checks if the url is a http(s) url
func IsNetworkURL(url string) bool {
	lower := strings.ToLower(url)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Upstream reads media bytes from the origin.
// A result shorter than length means the source ended.
type Upstream interface {
	ReadAt(ctx context.Context, spec *DataSpec, offset int64, length int64) ([]byte, error)
}

// HTTPUpstream reads media over http range requests
type HTTPUpstream struct {
	client      *http.Client
	userAgent   string
	lengthCache *gocache.Cache
}

// NewHTTPUpstream creates a new HTTPUpstream
func NewHTTPUpstream(client *http.Client, userAgent string) *HTTPUpstream {
	if client == nil {
		client = http.DefaultClient
	}

	if len(userAgent) == 0 {
		userAgent = commons.UserAgentDefault
	}

	return &HTTPUpstream{
		client:      client,
		userAgent:   userAgent,
		lengthCache: gocache.New(5*time.Minute, 10*time.Minute),
	}
}

// GetContentLength returns the total length of the url if a previous response reported it
func (upstream *HTTPUpstream) GetContentLength(url string) (int64, bool) {
	if length, ok := upstream.lengthCache.Get(url); ok {
		if l, ok2 := length.(int64); ok2 {
			return l, true
		}
	}
	return -1, false
}

// ReadAt reads [offset, offset+length) of the source
func (upstream *HTTPUpstream) ReadAt(ctx context.Context, spec *DataSpec, offset int64, length int64) ([]byte, error) {
	logger := log.WithFields(log.Fields{
		"package":  "datasource",
		"struct":   "HTTPUpstream",
		"function": "ReadAt",
	})

	if length <= 0 {
		return []byte{}, nil
	}

	if total, ok := upstream.GetContentLength(spec.URL); ok {
		if offset >= total {
			return []byte{}, nil
		}
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL, nil)
	if err != nil {
		return nil, commons.NewTransportError(spec.URL, 0, err)
	}

	userAgent := upstream.userAgent
	for k, v := range spec.Headers {
		if strings.EqualFold(k, "User-Agent") {
			userAgent = v
			continue
		}
		request.Header.Set(k, v)
	}
	request.Header.Set("User-Agent", userAgent)
	request.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))

	logger.Debugf("requesting %s, offset %d, length %d", spec.URL, offset, length)

	response, err := upstream.client.Do(request)
	if err != nil {
		return nil, commons.NewTransportError(spec.URL, 0, err)
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		// offset is past the end of the source
		return []byte{}, nil
	case response.StatusCode >= 400:
		return nil, commons.NewTransportError(spec.URL, response.StatusCode, xerrors.Errorf("unexpected status %q", response.Status))
	}

	body := io.Reader(response.Body)
	if response.StatusCode == http.StatusPartialContent {
		if total, ok := parseContentRangeTotal(response.Header.Get("Content-Range")); ok {
			upstream.lengthCache.Set(spec.URL, total, gocache.DefaultExpiration)
		}
	} else if offset > 0 {
		// the server ignored the range header
		logger.Debugf("server ignored range request for %s", spec.URL)
		_, err = io.CopyN(io.Discard, body, offset)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return []byte{}, nil
			}
			return nil, commons.NewTransportError(spec.URL, response.StatusCode, err)
		}
	}

	buffer := make([]byte, length)
	readLen, err := io.ReadFull(body, buffer)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, commons.NewTransportError(spec.URL, response.StatusCode, err)
	}

	return buffer[:readLen], nil
}

// parseContentRangeTotal parses the total length of "bytes 0-99/1000"
func parseContentRangeTotal(contentRange string) (int64, bool) {
	idx := strings.LastIndex(contentRange, "/")
	if idx < 0 {
		return -1, false
	}

	total, err := strconv.ParseInt(strings.TrimSpace(contentRange[idx+1:]), 10, 64)
	if err != nil {
		return -1, false
	}
	return total, true
}

// FileUpstream reads media from local files
type FileUpstream struct{}

// NewFileUpstream creates a new FileUpstream
func NewFileUpstream() *FileUpstream {
	return &FileUpstream{}
}

// ReadAt reads [offset, offset+length) of the local file
func (upstream *FileUpstream) ReadAt(ctx context.Context, spec *DataSpec, offset int64, length int64) ([]byte, error) {
	if length <= 0 {
		return []byte{}, nil
	}

	path := strings.TrimPrefix(spec.URL, "file://")
	file, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("failed to open file %q: %w", path, err)
	}
	defer file.Close()

	buffer := make([]byte, length)
	readLen, err := file.ReadAt(buffer, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, xerrors.Errorf("failed to read file %q: %w", path, err)
	}

	return buffer[:readLen], nil
}
