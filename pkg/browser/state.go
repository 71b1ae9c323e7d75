package browser

import (
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// pageState is the serialized form of a service's browser session. Only
// cookies travel through it; the persistent Chrome profile carries the
// rest (localStorage, service workers).
type pageState struct {
	Cookies []*proto.NetworkCookieParam `json:"cookies"`
}

// CaptureState serializes the page's cookies for persistence.
func CaptureState(page *rod.Page) (json.RawMessage, error) {
	cookies, err := page.Cookies(nil)
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}

	st := pageState{Cookies: make([]*proto.NetworkCookieParam, 0, len(cookies))}
	for _, c := range cookies {
		st.Cookies = append(st.Cookies, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: c.SameSite,
			Expires:  c.Expires,
		})
	}

	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshal page state: %w", err)
	}
	return data, nil
}

// ApplyState restores previously captured cookies onto a page. Call it
// before navigating so the service sees the session from the first
// request.
func ApplyState(page *rod.Page, data json.RawMessage) error {
	var st pageState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("parse page state: %w", err)
	}
	if len(st.Cookies) == 0 {
		return nil
	}
	if err := page.SetCookies(st.Cookies); err != nil {
		return fmt.Errorf("restore cookies: %w", err)
	}
	return nil
}
