package browser

import (
	"context"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/harun/sheetflow/pkg/driver"
)

// rodPage adapts a rod page to driver.Page.
type rodPage struct {
	page *rod.Page
}

// NewPage wraps a rod page for use by drivers.
func NewPage(page *rod.Page) driver.Page {
	return &rodPage{page: page}
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	pg := p.page.Context(ctx)
	if err := pg.Navigate(url); err != nil {
		return err
	}
	return pg.WaitLoad()
}

func (p *rodPage) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *rodPage) Find(ctx context.Context, selector string, timeout time.Duration) (driver.Element, error) {
	el, err := p.page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return nil, err
	}
	return &rodElement{el: el.CancelTimeout()}, nil
}

func (p *rodPage) FindAll(ctx context.Context, selector string) ([]driver.Element, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	out := make([]driver.Element, len(els))
	for i, el := range els {
		out[i] = &rodElement{el: el}
	}
	return out, nil
}

// rodElement adapts a rod element to driver.Element.
type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

// Input with empty text clears the element; otherwise it types into it.
// Rod's Input appends, so callers clear before typing a fresh prompt.
func (e *rodElement) Input(ctx context.Context, text string) error {
	el := e.el.Context(ctx)
	if text == "" {
		if err := el.SelectAllText(); err != nil {
			return err
		}
		return el.Type(input.Backspace)
	}
	return el.Input(text)
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

func (e *rodElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}
