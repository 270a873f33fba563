package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Info serves the company information document used to answer general
// questions. The document is read once and cached until Invalidate.
type Info struct {
	source Source
	url    string

	mu     sync.Mutex
	text   string
	loaded bool
}

func NewInfo(source Source, url string) (*Info, error) {
	if source == nil {
		return nil, errors.New("catalog: source must not be nil")
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("catalog: info url must not be empty")
	}
	return &Info{source: source, url: url}, nil
}

// Content returns the full document text.
func (i *Info) Content(ctx context.Context) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.loaded {
		return i.text, nil
	}

	ok, err := i.source.Exists(ctx, i.url)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInfoUnavailable, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: %s not found", ErrInfoUnavailable, i.url)
	}
	text, err := i.source.ReadText(ctx, i.url)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInfoUnavailable, err)
	}
	i.text = text
	i.loaded = true
	return text, nil
}

func (i *Info) Invalidate() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.text = ""
	i.loaded = false
}
