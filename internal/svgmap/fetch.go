package svgmap

import (
	"context"
	"errors"
)

// Failure kinds reported in diagnostics. Neither crosses the controller's
// public methods; callers see boolean results and the container placeholder.
var (
	ErrAssetLoad       = errors.New("map asset load failed")
	ErrStationNotFound = errors.New("station not found on map")
)

// Fetcher retrieves the raw bytes of a map asset.
type Fetcher interface {
	Fetch(ctx context.Context, source string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, source string) ([]byte, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, source string) ([]byte, error) {
	return f(ctx, source)
}
