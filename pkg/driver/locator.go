package driver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harun/sheetflow/pkg/resilience"
)

// Chain is an ordered list of CSS selectors tried in sequence. Web UIs
// change their markup without notice, so every interaction point carries
// fallbacks from older page revisions.
type Chain []string

// resolve returns the first element any selector in the chain matches.
// Each selector gets perSelector of the budget; when the whole chain
// misses the error is marked element-not-found so the retry policy treats
// it as transient.
func (c Chain) resolve(ctx context.Context, page Page, perSelector time.Duration) (Element, error) {
	if len(c) == 0 {
		return nil, resilience.Mark(resilience.KindElementNotFound, fmt.Errorf("empty selector chain"))
	}
	for _, sel := range c {
		el, err := page.Find(ctx, sel, perSelector)
		if err == nil {
			return el, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, resilience.Mark(resilience.KindElementNotFound,
		fmt.Errorf("no element matched %s", strings.Join(c, ", ")))
}

// present reports whether any selector in the chain currently matches,
// using a short probe timeout per selector.
func (c Chain) present(ctx context.Context, page Page, probe time.Duration) bool {
	for _, sel := range c {
		if _, err := page.Find(ctx, sel, probe); err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
	}
	return false
}

// all returns the currently matching elements of the first selector in the
// chain that matches anything.
func (c Chain) all(ctx context.Context, page Page) ([]Element, error) {
	for _, sel := range c {
		els, err := page.FindAll(ctx, sel)
		if err != nil {
			return nil, err
		}
		if len(els) > 0 {
			return els, nil
		}
	}
	return nil, nil
}
