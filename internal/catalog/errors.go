package catalog

import "errors"

var (
	// ErrCatalogNotFound means the dataset source does not exist. It is fatal
	// for every catalog operation.
	ErrCatalogNotFound = errors.New("catalog: dataset not found")
	// ErrCatalogLoad means the dataset exists but could not be read or
	// parsed. Partial loads are never served.
	ErrCatalogLoad = errors.New("catalog: dataset load failed")
	// ErrInvalidSearchParameters wraps malformed criteria or stock ids.
	ErrInvalidSearchParameters = errors.New("catalog: invalid search parameters")
	// ErrNotFound means no vehicle carries the requested stock id.
	ErrNotFound = errors.New("catalog: vehicle not found")
	// ErrInfoUnavailable means the company information document could not
	// be read.
	ErrInfoUnavailable = errors.New("catalog: info source unavailable")
)
