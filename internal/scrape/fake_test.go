package scrape

import (
	"context"
	"strings"
	"time"

	"permitwatch/internal/browser"
)

// labelScope mirrors the interactive-element scope used by label strategies
// so fakes can register elements under it.
const labelScope = "a, button, input[type='button'], input[type='submit']"

type stubElement struct {
	visible  bool
	enabled  bool
	text     string
	attrs    map[string]string
	children map[string][]browser.Element

	filled   []string
	clicks   int
	selected []string

	onClick   func()
	clickErr  error
	fillErr   error
	selectErr error
}

func (s *stubElement) Visible() bool { return s.visible }
func (s *stubElement) Enabled() bool { return s.enabled }
func (s *stubElement) Text() (string, error) {
	return s.text, nil
}
func (s *stubElement) Attribute(name string) (string, bool) {
	v, ok := s.attrs[name]
	return v, ok
}
func (s *stubElement) Fill(text string) error {
	if s.fillErr != nil {
		return s.fillErr
	}
	s.filled = append(s.filled, text)
	return nil
}
func (s *stubElement) Click() error {
	if s.clickErr != nil {
		return s.clickErr
	}
	s.clicks++
	if s.onClick != nil {
		s.onClick()
	}
	return nil
}
func (s *stubElement) SelectOption(label string) error {
	if s.selectErr != nil {
		return s.selectErr
	}
	s.selected = append(s.selected, label)
	return nil
}
func (s *stubElement) Elements(selector string) ([]browser.Element, error) {
	return s.children[selector], nil
}

func control() *stubElement {
	return &stubElement{visible: true, enabled: true, attrs: map[string]string{}}
}

// pageState is one DOM snapshot the stub page can present.
type pageState struct {
	selectors map[string][]browser.Element
	text      string
}

// stubPage presents a routable sequence of DOM states. Navigate switches to
// the state registered for the URL; element actions may swap the current
// state via setState to simulate postbacks.
type stubPage struct {
	current   pageState
	routes    map[string]pageState
	navErr    map[string]error
	navigated []string
	url       string
}

func newStubPage() *stubPage {
	return &stubPage{
		routes: map[string]pageState{},
		navErr: map[string]error{},
	}
}

func (p *stubPage) setState(s pageState) { p.current = s }

func (p *stubPage) Navigate(_ context.Context, url string) error {
	p.navigated = append(p.navigated, url)
	if err := p.navErr[url]; err != nil {
		return err
	}
	p.url = url
	if state, ok := p.routes[url]; ok {
		p.current = state
	}
	return nil
}

func (p *stubPage) WaitSettled(context.Context, time.Duration) error { return nil }

func (p *stubPage) Elements(selector string) ([]browser.Element, error) {
	return p.current.selectors[selector], nil
}

func (p *stubPage) Text() (string, error) { return p.current.text, nil }
func (p *stubPage) HTML() string          { return "<html/>" }
func (p *stubPage) Screenshot() []byte    { return []byte{1} }
func (p *stubPage) URL() string           { return p.url }

type captureRecorder struct {
	stems []string
}

func (c *captureRecorder) Capture(stem string, _ []byte, _ string) {
	c.stems = append(c.stems, stem)
}

// gridTable builds a results-table element: th cells for headers, tr/td
// children for rows, and a text body covering both so token scoring sees
// the full grid.
func gridTable(headers []string, rows [][]string) *stubElement {
	table := control()
	table.children = map[string][]browser.Element{}

	var ths []browser.Element
	for _, h := range headers {
		cell := control()
		cell.text = h
		ths = append(ths, cell)
	}
	table.children["th"] = ths

	var trs []browser.Element
	for _, row := range rows {
		tr := control()
		var tds []browser.Element
		for _, cellText := range row {
			td := control()
			td.text = cellText
			tds = append(tds, td)
		}
		tr.children = map[string][]browser.Element{"td": tds}
		trs = append(trs, tr)
	}
	table.children["tr"] = trs

	var parts []string
	parts = append(parts, headers...)
	for _, row := range rows {
		parts = append(parts, row...)
	}
	table.text = strings.Join(parts, " ")
	return table
}

var gridHeaders = []string{"PERMIT_NO", "ISSUED", "PERMIT_TYPE", "STATUS", "SITE_APN", "SITE_ADDR"}
