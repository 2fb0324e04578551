package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// rodPage adapts a Rod page to the Page interface.
type rodPage struct {
	page *rod.Page
}

func newRodPage(page *rod.Page) *rodPage {
	return &rodPage{page: page}
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

func (p *rodPage) WaitSettled(ctx context.Context, settle time.Duration) error {
	// WaitStable returns an error when the bound elapses before the DOM
	// quiets down; the pipeline proceeds on either outcome, so the timeout
	// is absorbed here. Context cancellation still propagates.
	err := p.page.Context(ctx).Timeout(settle).WaitStable(300 * time.Millisecond)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

func (p *rodPage) Elements(selector string) ([]Element, error) {
	els, err := p.page.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	wrapped := make([]Element, 0, len(els))
	for _, el := range els {
		wrapped = append(wrapped, &rodElement{el: el})
	}
	return wrapped, nil
}

func (p *rodPage) Text() (string, error) {
	res, err := p.page.Eval(`() => document.body ? document.body.innerText : ''`)
	if err != nil {
		return "", fmt.Errorf("page text: %w", err)
	}
	return res.Value.Str(), nil
}

func (p *rodPage) HTML() string {
	html, err := p.page.HTML()
	if err != nil {
		return ""
	}
	return html
}

func (p *rodPage) Screenshot() []byte {
	shot, err := p.page.Screenshot(true, nil)
	if err != nil {
		return nil
	}
	return shot
}

func (p *rodPage) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// rodElement adapts a Rod element to the Element interface.
type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Visible() bool {
	visible, err := e.el.Visible()
	return err == nil && visible
}

// Enabled treats the disabled attribute, aria-disabled, and the disabled
// class conventions of ASP.NET grids as not-interactable.
func (e *rodElement) Enabled() bool {
	if _, present := e.Attribute("disabled"); present {
		return false
	}
	if v, present := e.Attribute("aria-disabled"); present && strings.EqualFold(v, "true") {
		return false
	}
	if class, present := e.Attribute("class"); present {
		lowered := strings.ToLower(class)
		if strings.Contains(lowered, "aspnetdisabled") || strings.Contains(lowered, "rgpagedisabled") {
			return false
		}
	}
	return true
}

func (e *rodElement) Text() (string, error) {
	text, err := e.el.Text()
	if err != nil {
		return "", fmt.Errorf("element text: %w", err)
	}
	return text, nil
}

func (e *rodElement) Attribute(name string) (string, bool) {
	val, err := e.el.Attribute(name)
	if err != nil || val == nil {
		return "", false
	}
	return *val, true
}

func (e *rodElement) Fill(text string) error {
	if err := e.el.SelectAllText(); err != nil {
		return fmt.Errorf("select text: %w", err)
	}
	if err := e.el.Input(text); err != nil {
		return fmt.Errorf("input: %w", err)
	}
	return nil
}

func (e *rodElement) Click() error {
	if err := e.el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click: %w", err)
	}
	return nil
}

func (e *rodElement) SelectOption(label string) error {
	if err := e.el.Select([]string{label}, true, rod.SelectorTypeText); err != nil {
		return fmt.Errorf("select option %q: %w", label, err)
	}
	return nil
}

func (e *rodElement) Elements(selector string) ([]Element, error) {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	wrapped := make([]Element, 0, len(els))
	for _, el := range els {
		wrapped = append(wrapped, &rodElement{el: el})
	}
	return wrapped, nil
}
