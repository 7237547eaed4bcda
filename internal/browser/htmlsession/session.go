// Package htmlsession implements browser.Session over static html parsed with goquery.
//
// It does not run scripts. Clicks follow the element's navigation target, which is
// `data-href`, then `href` of the element or its closest anchor. A click on an element
// carrying `data-reveal="<selector>"` removes the `hidden` attribute from every
// element matching the selector instead.
package htmlsession

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"notifyme-backend/internal/browser"
	"notifyme-backend/lib/htmlutil"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

type element struct {
	node *html.Node
	key  int
}

func (e element) Key() string {
	return strconv.Itoa(e.key)
}

// Session is a browser.Session over documents obtained from a Fetcher.
type Session struct {
	fetcher Fetcher

	mutex   sync.Mutex
	doc     *goquery.Document
	url     string
	keys    map[*html.Node]int
	scrolls [][2]int
	clicks  []string
}

func New(fetcher Fetcher) *Session {
	return &Session{
		fetcher: fetcher,
		keys:    map[*html.Node]int{},
	}
}

// NewFactory returns a browser.Factory producing sessions over fetcher.
func NewFactory(fetcher Fetcher) browser.Factory {
	return func(ctx context.Context) (browser.Session, error) {
		return New(fetcher), nil
	}
}

var errNoDocument = errors.New("no document loaded")

func (s *Session) Navigate(ctx context.Context, target string) error {
	body, finalUrl, err := s.fetcher.Fetch(ctx, target)
	if err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("navigate: parse %s: %w", finalUrl, err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.doc = doc
	s.url = finalUrl
	s.keys = map[*html.Node]int{}
	return nil
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.doc == nil {
		return "", errNoDocument
	}
	return s.url, nil
}

func (s *Session) PageSource(ctx context.Context) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.doc == nil {
		return "", errNoDocument
	}
	return goquery.OuterHtml(s.doc.Selection)
}

// wrap must be called with the mutex held.
func (s *Session) wrap(node *html.Node) element {
	key, ok := s.keys[node]
	if !ok {
		key = len(s.keys) + 1
		s.keys[node] = key
	}
	return element{node: node, key: key}
}

// nodeOf must be called with the mutex held.
func (s *Session) nodeOf(el browser.Element) (*html.Node, error) {
	e, ok := el.(element)
	if !ok {
		return nil, fmt.Errorf("%w: element of type %T", browser.ErrStaleElement, el)
	}
	if s.doc == nil || !isDescendant(s.doc.Nodes[0], e.node) {
		return nil, browser.ErrStaleElement
	}
	return e.node, nil
}

func isDescendant(ancestor, node *html.Node) bool {
	for n := node.Parent; n != nil; n = n.Parent {
		if n == ancestor {
			return true
		}
	}
	return false
}

func (s *Session) QueryAll(ctx context.Context, parent browser.Element, selector string) ([]browser.Element, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.doc == nil {
		return nil, errNoDocument
	}

	scope := s.doc.Selection
	if parent != nil {
		node, err := s.nodeOf(parent)
		if err != nil {
			return nil, err
		}
		scope = s.doc.FindNodes(node)
	}

	var out []browser.Element
	scope.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		out = append(out, s.wrap(sel.Nodes[0]))
	})
	return out, nil
}

func (s *Session) Contains(ctx context.Context, parent, child browser.Element) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	parentNode, err := s.nodeOf(parent)
	if err != nil {
		return false, err
	}
	childNode, err := s.nodeOf(child)
	if err != nil {
		return false, err
	}
	return isDescendant(parentNode, childNode), nil
}

func (s *Session) Text(ctx context.Context, el browser.Element) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	node, err := s.nodeOf(el)
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(htmlutil.GetText(node)), " "), nil
}

func attr(node *html.Node, name string) (string, bool) {
	for _, a := range node.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// closestAttr walks from node up to the root and returns the first value of name.
func closestAttr(node *html.Node, name string) (string, bool) {
	for n := node; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if v, ok := attr(n, name); ok {
			return v, true
		}
	}
	return "", false
}

func (s *Session) Attribute(ctx context.Context, el browser.Element, name string) (string, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	node, err := s.nodeOf(el)
	if err != nil {
		return "", false, err
	}
	value, ok := attr(node, name)
	return value, ok, nil
}

func (s *Session) Visible(ctx context.Context, el browser.Element) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	node, err := s.nodeOf(el)
	if err != nil {
		return false, err
	}
	for n := node; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if _, hidden := attr(n, "hidden"); hidden {
			return false, nil
		}
		style, _ := attr(n, "style")
		if strings.Contains(strings.ReplaceAll(style, " ", ""), "display:none") {
			return false, nil
		}
	}
	return true, nil
}

func (s *Session) ScrollIntoView(ctx context.Context, el browser.Element) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	_, err := s.nodeOf(el)
	return err
}

// clickTarget returns the url a click on node leads to, or "" when the click does
// not navigate.
func (s *Session) clickTarget(node *html.Node) (string, error) {
	href, ok := closestAttr(node, "data-href")
	if !ok {
		for n := node; n != nil; n = n.Parent {
			if n.Type == html.ElementNode && n.Data == "a" {
				href, ok = attr(n, "href")
				break
			}
		}
	}
	if !ok || href == "" {
		return "", nil
	}
	base, err := url.Parse(s.url)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

func (s *Session) click(ctx context.Context, el browser.Element, native bool) error {
	s.mutex.Lock()
	node, err := s.nodeOf(el)
	if err != nil {
		s.mutex.Unlock()
		return err
	}
	s.clicks = append(s.clicks, fmt.Sprintf("%s:%v", node.Data, native))

	if reveal, ok := attr(node, "data-reveal"); ok {
		s.doc.Find(reveal).RemoveAttr("hidden")
		s.mutex.Unlock()
		return nil
	}
	target, err := s.clickTarget(node)
	s.mutex.Unlock()
	if err != nil || target == "" {
		return err
	}
	return s.Navigate(ctx, target)
}

func (s *Session) Click(ctx context.Context, el browser.Element) error {
	return s.click(ctx, el, true)
}

func (s *Session) DispatchClick(ctx context.Context, el browser.Element) error {
	return s.click(ctx, el, false)
}

func (s *Session) ScrollBy(ctx context.Context, dx, dy int) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.scrolls = append(s.scrolls, [2]int{dx, dy})
	return nil
}

// Scrolls returns every ScrollBy offset in order.
func (s *Session) Scrolls() [][2]int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([][2]int(nil), s.scrolls...)
}

// Clicks returns "<tag>:<native>" for every click that reached an element.
func (s *Session) Clicks() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]string(nil), s.clicks...)
}

func (s *Session) Close() error {
	return nil
}
