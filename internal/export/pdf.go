package export

import (
	"context"
	"fmt"
	"io"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Snapshotter renders a URL to a PDF document.
type Snapshotter interface {
	Snapshot(ctx context.Context, url string) ([]byte, error)
}

// RodSnapshotter prints a rendered dashboard route through a headless
// Chromium instance. ControlURL points at an already-running browser's
// DevTools endpoint; when empty a browser is launched per snapshot.
type RodSnapshotter struct {
	ControlURL string
}

var _ Snapshotter = (*RodSnapshotter)(nil)

func (s *RodSnapshotter) Snapshot(ctx context.Context, url string) ([]byte, error) {
	controlURL := s.ControlURL
	if controlURL == "" {
		launched, err := launcher.New().Headless(true).Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = launched
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	defer func() { _ = browser.Close() }()

	page, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer func() { _ = page.Close() }()

	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait for page: %w", err)
	}

	r, err := page.PDF(&proto.PagePrintToPDF{PrintBackground: true})
	if err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pdf stream: %w", err)
	}
	return data, nil
}
