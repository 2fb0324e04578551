package locator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"permitwatch/internal/browser"
)

type fakeElement struct {
	visible  bool
	enabled  bool
	text     string
	attrs    map[string]string
	children map[string][]browser.Element
	name     string
}

func (f *fakeElement) Visible() bool { return f.visible }
func (f *fakeElement) Enabled() bool { return f.enabled }
func (f *fakeElement) Text() (string, error) {
	return f.text, nil
}
func (f *fakeElement) Attribute(name string) (string, bool) {
	v, ok := f.attrs[name]
	return v, ok
}
func (f *fakeElement) Fill(string) error         { return nil }
func (f *fakeElement) Click() error              { return nil }
func (f *fakeElement) SelectOption(string) error { return nil }
func (f *fakeElement) Elements(selector string) ([]browser.Element, error) {
	return f.children[selector], nil
}

type fakePage struct {
	selectors map[string][]browser.Element
	url       string
}

func (f *fakePage) Navigate(context.Context, string) error            { return nil }
func (f *fakePage) WaitSettled(context.Context, time.Duration) error  { return nil }
func (f *fakePage) Text() (string, error)                             { return "", nil }
func (f *fakePage) HTML() string                                      { return "<html/>" }
func (f *fakePage) Screenshot() []byte                                { return []byte{1} }
func (f *fakePage) URL() string                                       { return f.url }
func (f *fakePage) Elements(selector string) ([]browser.Element, error) {
	return f.selectors[selector], nil
}

type captureRecorder struct {
	stems []string
}

func (c *captureRecorder) Capture(stem string, _ []byte, _ string) {
	c.stems = append(c.stems, stem)
}

func visibleEl(name string) *fakeElement {
	return &fakeElement{name: name, visible: true, enabled: true, attrs: map[string]string{}}
}

// Strategy 1 matches only a hidden element; strategy 2 matches a visible
// one. Resolution must return the strategy-2 handle, never the hidden one
// and never an error.
func TestResolveFallsThroughHiddenMatches(t *testing.T) {
	hidden := &fakeElement{name: "hidden", visible: false, enabled: true}
	shown := visibleEl("shown")
	page := &fakePage{selectors: map[string][]browser.Element{
		"#ucLogin_btnLogin":      {hidden},
		"input[id*='btnLogin']":  {shown},
	}}
	r := NewResolver(page, nil, zap.NewNop())

	el, err := r.Resolve(Descriptor{
		Control: "submit",
		Strategies: []Strategy{
			ByID("ucLogin_btnLogin"),
			BySelector("input[id*='btnLogin']"),
		},
	}, Interactable)

	require.NoError(t, err)
	assert.Same(t, shown, el)
}

func TestResolveReturnsFirstOfMany(t *testing.T) {
	first := visibleEl("first")
	second := visibleEl("second")
	page := &fakePage{selectors: map[string][]browser.Element{
		"table": {first, second},
	}}
	r := NewResolver(page, nil, zap.NewNop())

	el, err := r.Resolve(Descriptor{
		Control:    "grid",
		Strategies: []Strategy{BySelector("table")},
	}, Interactable)

	require.NoError(t, err)
	assert.Same(t, first, el)
}

func TestResolveNotFoundNamesAllAttemptedStrategies(t *testing.T) {
	page := &fakePage{selectors: map[string][]browser.Element{}, url: "https://portal/login"}
	captures := &captureRecorder{}
	r := NewResolver(page, captures, zap.NewNop())

	_, err := r.Resolve(Descriptor{
		Control: "username",
		Strategies: []Strategy{
			ByID("ucLogin_txtLoginId"),
			BySelector("input[name*='LoginId']"),
		},
	}, Interactable)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "username", notFound.Control)
	require.Len(t, notFound.Attempted, 2)
	assert.Contains(t, notFound.Attempted[0], "ucLogin_txtLoginId")
	assert.Contains(t, notFound.Attempted[1], "LoginId")

	// Failure is never silent: a diagnostics capture accompanies it.
	require.Len(t, captures.stems, 1)
	assert.Contains(t, captures.stems[0], "username")
}

func TestResolveConstraintsControlDisabledFiltering(t *testing.T) {
	pager := &fakeElement{name: "pager", visible: true, enabled: false}
	page := &fakePage{selectors: map[string][]browser.Element{
		".rgPageNext": {pager},
	}}
	r := NewResolver(page, nil, zap.NewNop())
	d := Descriptor{Control: "next_page", Strategies: []Strategy{BySelector(".rgPageNext")}}

	_, err := r.Resolve(d, Interactable)
	assert.Error(t, err)

	el, err := r.Resolve(d, VisiblePresence)
	require.NoError(t, err)
	assert.Same(t, pager, el)
}

func TestByLabelMatchesTextAndValueAttribute(t *testing.T) {
	textButton := visibleEl("text")
	textButton.text = "Search Again"
	valueButton := visibleEl("value")
	valueButton.attrs["value"] = "Search"
	other := visibleEl("other")
	other.text = "Reset"

	page := &fakePage{selectors: map[string][]browser.Element{
		defaultLabelScope: {other, valueButton, textButton},
	}}
	r := NewResolver(page, nil, zap.NewNop())

	el, err := r.Resolve(Descriptor{
		Control:    "search_button",
		Strategies: []Strategy{ByLabel("", "search")},
	}, Interactable)

	require.NoError(t, err)
	assert.Same(t, valueButton, el)
}

func TestByOptionMatchesSelectByOptionText(t *testing.T) {
	issuedOpt := visibleEl("opt")
	issuedOpt.text = "ISSUED"
	nameOpt := visibleEl("opt2")
	nameOpt.text = "PERMIT_NO"

	columnSelect := visibleEl("column")
	columnSelect.children = map[string][]browser.Element{"option": {nameOpt, issuedOpt}}
	otherSelect := visibleEl("other")
	otherSelect.children = map[string][]browser.Element{"option": {nameOpt}}

	page := &fakePage{selectors: map[string][]browser.Element{
		"select": {otherSelect, columnSelect},
	}}
	r := NewResolver(page, nil, zap.NewNop())

	el, err := r.Resolve(Descriptor{
		Control:    "search_column",
		Strategies: []Strategy{ByOption("issued")},
	}, Interactable)

	require.NoError(t, err)
	assert.Same(t, columnSelect, el)
}

// Configured selectors route through the id strategy when they are a bare
// "#ident"; structural selectors stay CSS.
func TestFromSelectorRoutesBareIDs(t *testing.T) {
	assert.Equal(t, ByID("ucLogin_txtLoginId"), FromSelector("#ucLogin_txtLoginId"))
	assert.Equal(t, ByID("btn-search-2"), FromSelector("#btn-search-2"))
	assert.Equal(t, BySelector("input[id*='LoginId']"), FromSelector("input[id*='LoginId']"))
	assert.Equal(t, BySelector("#main .grid"), FromSelector("#main .grid"))
	assert.Equal(t, BySelector("#"), FromSelector("#"))
}

func TestFromSelectorResolvesThroughIDStrategy(t *testing.T) {
	field := visibleEl("field")
	page := &fakePage{selectors: map[string][]browser.Element{
		"#ucLogin_txtLoginId": {field},
	}}
	r := NewResolver(page, nil, zap.NewNop())

	el, err := r.Resolve(Descriptor{
		Control:    "username",
		Strategies: []Strategy{FromSelector("#ucLogin_txtLoginId")},
	}, Interactable)

	require.NoError(t, err)
	assert.Same(t, field, el)
}

func TestStrategyStringForms(t *testing.T) {
	assert.Equal(t, "id:x", ByID("x").String())
	assert.Equal(t, "selector:.y", BySelector(".y").String())
	assert.Contains(t, ByLabel("", "Next").String(), `label:"Next"`)
	assert.Contains(t, ByOption("Public").String(), `option:"Public"`)
}
