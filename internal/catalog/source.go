package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/viant/afs"
)

// Source is the byte source the catalog and info documents are read from.
type Source interface {
	Exists(ctx context.Context, url string) (bool, error)
	ReadText(ctx context.Context, url string) (string, error)
}

// AFSSource reads documents through an afs.Service, so the catalog can live
// on local disk (file://), in memory (mem://) or in a bucket when the
// matching afsc scheme is registered.
type AFSSource struct {
	fs afs.Service
}

func NewAFSSource(fs afs.Service) (*AFSSource, error) {
	if fs == nil {
		return nil, errors.New("catalog: afs service must not be nil")
	}
	return &AFSSource{fs: fs}, nil
}

func (s *AFSSource) Exists(ctx context.Context, url string) (bool, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return false, errors.New("catalog: url is required")
	}
	ok, err := s.fs.Exists(ctx, url)
	if err != nil {
		return false, fmt.Errorf("catalog: check %q: %w", url, err)
	}
	return ok, nil
}

func (s *AFSSource) ReadText(ctx context.Context, url string) (string, error) {
	data, err := s.fs.DownloadWithURL(ctx, url)
	if err != nil {
		return "", fmt.Errorf("catalog: read %q: %w", url, err)
	}
	return string(data), nil
}
