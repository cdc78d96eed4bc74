// Package pagination parses page parameters and encodes opaque page tokens
// for time-ordered Firestore listings.
package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize is used when the client omits pageSize.
	DefaultPageSize = 20
	// DefaultMaxPageSize caps pageSize.
	DefaultMaxPageSize = 100
)

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid pageSize")
	ErrInvalidPageToken = errors.New("pagination: invalid pageToken")
)

// Params are the paging inputs of a list request.
type Params struct {
	PageSize  int
	PageToken string
	Cursor    Cursor
}

// Options bound page sizes for one endpoint.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
}

// FromRequest reads pageSize and pageToken from the query string.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	values := r.URL.Query()

	size, err := parsePageSize(values.Get("pageSize"), opts)
	if err != nil {
		return Params{}, err
	}
	params := Params{PageSize: size, PageToken: strings.TrimSpace(values.Get("pageToken"))}
	if params.PageToken != "" {
		if params.Cursor, err = DecodeToken(params.PageToken); err != nil {
			return Params{}, err
		}
	}
	return params, nil
}

// Clamp bounds size to the configured range, substituting the default for
// non-positive values.
func Clamp(size int, opts Options) int {
	def, max := limits(opts)
	if size <= 0 {
		return def
	}
	if size > max {
		return max
	}
	return size
}

func parsePageSize(raw string, opts Options) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Clamp(0, opts), nil
	}
	size, err := strconv.Atoi(raw)
	if err != nil || size <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPageSize, raw)
	}
	return Clamp(size, opts), nil
}

func limits(opts Options) (int, int) {
	def, max := opts.DefaultPageSize, opts.MaxPageSize
	if max <= 0 {
		max = DefaultMaxPageSize
	}
	if def <= 0 {
		def = DefaultPageSize
	}
	if def > max {
		def = max
	}
	return def, max
}
