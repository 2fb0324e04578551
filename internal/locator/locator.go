// Package locator resolves logical UI controls against an unstable DOM.
// Each control is described by an ordered list of matching strategies,
// tried in priority order; the first visible, usable match wins. This
// replaces hard-coded chains of try/fallback selector guessing.
package locator

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"permitwatch/internal/browser"
	"permitwatch/internal/diag"
)

// Kind discriminates strategy behavior.
type Kind string

const (
	// KindID matches by stable element identifier.
	KindID Kind = "id"
	// KindSelector matches by CSS selector.
	KindSelector Kind = "selector"
	// KindLabel matches interactive elements by visible label text.
	KindLabel Kind = "label"
	// KindOption matches select controls by the text of one of their
	// options.
	KindOption Kind = "option"
)

// Strategy is one way of locating a control.
type Strategy struct {
	Kind     Kind
	Selector string
	Text     string
}

func (s Strategy) String() string {
	switch s.Kind {
	case KindID:
		return "id:" + s.Selector
	case KindSelector:
		return "selector:" + s.Selector
	case KindLabel:
		return fmt.Sprintf("label:%q in %s", s.Text, s.Selector)
	case KindOption:
		return fmt.Sprintf("option:%q in %s", s.Text, s.Selector)
	default:
		return string(s.Kind) + ":" + s.Selector
	}
}

// ByID matches by stable element identifier.
func ByID(id string) Strategy { return Strategy{Kind: KindID, Selector: id} }

// BySelector matches by CSS selector.
func BySelector(selector string) Strategy {
	return Strategy{Kind: KindSelector, Selector: selector}
}

// FromSelector maps a configured selector string onto a strategy: a bare
// "#ident" becomes an id strategy, anything else stays a CSS selector.
func FromSelector(selector string) Strategy {
	if id, ok := strings.CutPrefix(selector, "#"); ok && isCSSIdent(id) {
		return ByID(id)
	}
	return BySelector(selector)
}

func isCSSIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

// defaultLabelScope covers the interactive elements a label strategy
// searches when no scope is given.
const defaultLabelScope = "a, button, input[type='button'], input[type='submit']"

// ByLabel matches interactive elements whose visible text (or value
// attribute) contains text, case-insensitively. scope narrows the searched
// elements; empty means any interactive element.
func ByLabel(scope, text string) Strategy {
	if scope == "" {
		scope = defaultLabelScope
	}
	return Strategy{Kind: KindLabel, Selector: scope, Text: text}
}

// ByOption matches select controls containing an option whose text contains
// text, case-insensitively.
func ByOption(text string) Strategy {
	return Strategy{Kind: KindOption, Selector: "select", Text: text}
}

// Descriptor names one logical control and the ordered strategies for
// finding it.
type Descriptor struct {
	Control    string
	Strategies []Strategy
}

// Constraints filter strategy matches.
type Constraints struct {
	RequireVisible bool
	RequireEnabled bool
}

// Interactable is the default constraint set for controls about to be
// filled or clicked.
var Interactable = Constraints{RequireVisible: true, RequireEnabled: true}

// VisiblePresence accepts disabled elements. Used where a found-but-disabled
// control is itself meaningful, e.g. a pager on the last page.
var VisiblePresence = Constraints{RequireVisible: true}

// NotFoundError reports that no strategy yielded a usable match. It names
// the control and every attempted strategy so a DOM change can be diagnosed
// from the error alone.
type NotFoundError struct {
	Control   string
	Attempted []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("element not found: %s (attempted: %s)",
		e.Control, strings.Join(e.Attempted, "; "))
}

// Resolver evaluates descriptors against a page. Resolution is read-only:
// it never mutates page state.
type Resolver struct {
	page browser.Page
	diag diag.Sink
	log  *zap.Logger
}

func NewResolver(page browser.Page, sink diag.Sink, log *zap.Logger) *Resolver {
	if sink == nil {
		sink = diag.NopSink{}
	}
	return &Resolver{page: page, diag: sink, log: log}
}

// Resolve tries each strategy in order and returns the first match passing
// the constraints. A strategy whose matches are all hidden or disabled does
// not fail resolution; the next strategy may find the same control exposed
// through a different rendering path. When every strategy is exhausted the
// failure is captured to the diagnostics sink, never silent.
func (r *Resolver) Resolve(d Descriptor, c Constraints) (browser.Element, error) {
	attempted := make([]string, 0, len(d.Strategies))

	for _, strategy := range d.Strategies {
		matches, err := r.matches(strategy)
		if err != nil {
			attempted = append(attempted, strategy.String()+" (error: "+err.Error()+")")
			continue
		}

		usable := 0
		var selected browser.Element
		for _, el := range matches {
			if c.RequireVisible && !el.Visible() {
				continue
			}
			if c.RequireEnabled && !el.Enabled() {
				continue
			}
			usable++
			if selected == nil {
				selected = el
			}
		}

		if selected != nil {
			r.log.Debug("control resolved",
				zap.String("control", d.Control),
				zap.String("strategy", strategy.String()),
				zap.Int("matches", len(matches)),
				zap.Int("usable", usable))
			return selected, nil
		}
		attempted = append(attempted, fmt.Sprintf("%s (%d matches, 0 usable)", strategy, len(matches)))
	}

	err := &NotFoundError{Control: d.Control, Attempted: attempted}
	r.log.Error("control resolution failed",
		zap.String("control", d.Control),
		zap.Strings("attempted", attempted),
		zap.String("url", r.page.URL()))
	r.diag.Capture("element_not_found_"+d.Control, r.page.Screenshot(), r.page.HTML())
	return nil, err
}

func (r *Resolver) matches(s Strategy) ([]browser.Element, error) {
	switch s.Kind {
	case KindID:
		return r.page.Elements("#" + escapeCSSIdent(s.Selector))
	case KindSelector:
		return r.page.Elements(s.Selector)
	case KindLabel:
		els, err := r.page.Elements(s.Selector)
		if err != nil {
			return nil, err
		}
		return filterByLabel(els, s.Text), nil
	case KindOption:
		els, err := r.page.Elements(s.Selector)
		if err != nil {
			return nil, err
		}
		return filterByOption(els, s.Text), nil
	default:
		return nil, fmt.Errorf("unknown strategy kind %q", s.Kind)
	}
}

func filterByLabel(els []browser.Element, label string) []browser.Element {
	want := strings.ToUpper(strings.TrimSpace(label))
	var out []browser.Element
	for _, el := range els {
		text, err := el.Text()
		if err == nil && strings.Contains(strings.ToUpper(text), want) {
			out = append(out, el)
			continue
		}
		// Inputs carry their label in the value attribute.
		if val, ok := el.Attribute("value"); ok &&
			strings.Contains(strings.ToUpper(val), want) {
			out = append(out, el)
		}
	}
	return out
}

func filterByOption(els []browser.Element, option string) []browser.Element {
	want := strings.ToUpper(strings.TrimSpace(option))
	var out []browser.Element
	for _, el := range els {
		options, err := el.Elements("option")
		if err != nil {
			continue
		}
		for _, opt := range options {
			text, err := opt.Text()
			if err != nil {
				continue
			}
			if strings.Contains(strings.ToUpper(text), want) {
				out = append(out, el)
				break
			}
		}
	}
	return out
}

// escapeCSSIdent escapes characters that would break an identifier inside a
// CSS selector.
func escapeCSSIdent(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '/', '.', ':', '[', ']', '(', ')', '#', '>', '+', '~', '=', '^', '$', '*', '|', '!', '@', '%', '&', '\'', '"', '`', '{', '}', ' ':
			b.WriteRune('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
