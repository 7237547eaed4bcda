// Package chromedpsession implements browser.Session over a real chrome instance.
package chromedpsession

import (
	"context"
	"errors"
	"fmt"
	"notifyme-backend/internal/browser"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// operationTimeout bounds every single devtools round trip, waiting for content to
// appear is the resolver's job, not the session's.
const operationTimeout = 15 * time.Second

type element struct {
	node *cdp.Node
}

func (e element) Key() string {
	return strconv.FormatInt(int64(e.node.NodeID), 10)
}

// Session is a browser.Session backed by one chrome tab.
type Session struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

// NewFactory returns a browser.Factory that launches a new chrome process per session.
func NewFactory(opts Options) browser.Factory {
	return func(ctx context.Context) (browser.Session, error) {
		return Open(ctx, opts)
	}
}

// Open launches chrome, opens a tab and installs the stealth script. The lifetime of
// the browser is bound to Close, not to ctx.
func Open(ctx context.Context, opts Options) (*Session, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(
		context.WithoutCancel(ctx),
		buildAllocatorOptions(opts)...,
	)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
		return err
	}))
	if err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	return &Session{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
	}, nil
}

func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, operationTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func nodeOf(el browser.Element) (*cdp.Node, error) {
	e, ok := el.(element)
	if !ok || e.node == nil {
		return nil, fmt.Errorf("%w: element of type %T", browser.ErrStaleElement, el)
	}
	return e.node, nil
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var location string
	err := s.run(ctx, chromedp.Location(&location))
	return location, err
}

func (s *Session) PageSource(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (s *Session) QueryAll(ctx context.Context, parent browser.Element, selector string) ([]browser.Element, error) {
	opts := []chromedp.QueryOption{chromedp.ByQueryAll, chromedp.AtLeast(0)}
	if parent != nil {
		parentNode, err := nodeOf(parent)
		if err != nil {
			return nil, err
		}
		opts = append(opts, chromedp.FromNode(parentNode))
	}

	var nodes []*cdp.Node
	err := s.run(ctx, chromedp.Nodes(selector, &nodes, opts...))
	if err != nil {
		return nil, err
	}

	out := make([]browser.Element, len(nodes))
	for i, n := range nodes {
		out[i] = element{node: n}
	}
	return out, nil
}

func (s *Session) Contains(ctx context.Context, parent, child browser.Element) (bool, error) {
	parentNode, err := nodeOf(parent)
	if err != nil {
		return false, err
	}
	childNode, err := nodeOf(child)
	if err != nil {
		return false, err
	}
	for n := childNode.Parent; n != nil; n = n.Parent {
		if n.NodeID == parentNode.NodeID {
			return true, nil
		}
	}
	// the parent chain is only as deep as what chrome has pushed to us, fall back to
	// comparing absolute paths.
	return strings.HasPrefix(childNode.FullXPath(), parentNode.FullXPath()+"/"), nil
}

func (s *Session) Text(ctx context.Context, el browser.Element) (string, error) {
	node, err := nodeOf(el)
	if err != nil {
		return "", err
	}
	var text string
	err = s.run(ctx, chromedp.TextContent([]cdp.NodeID{node.NodeID}, &text, chromedp.ByNodeID))
	return strings.Join(strings.Fields(text), " "), err
}

func (s *Session) Attribute(ctx context.Context, el browser.Element, name string) (string, bool, error) {
	node, err := nodeOf(el)
	if err != nil {
		return "", false, err
	}
	var (
		value string
		ok    bool
	)
	err = s.run(ctx, chromedp.AttributeValue([]cdp.NodeID{node.NodeID}, name, &value, &ok, chromedp.ByNodeID))
	return value, ok, err
}

func (s *Session) Visible(ctx context.Context, el browser.Element) (bool, error) {
	node, err := nodeOf(el)
	if err != nil {
		return false, err
	}
	visible := false
	err = s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		// chrome refuses to compute a box model for nodes that are not rendered.
		_, err := dom.GetBoxModel().WithNodeID(node.NodeID).Do(ctx)
		visible = err == nil
		return nil
	}))
	return visible, err
}

func (s *Session) ScrollIntoView(ctx context.Context, el browser.Element) error {
	node, err := nodeOf(el)
	if err != nil {
		return err
	}
	return s.run(ctx, chromedp.ScrollIntoView([]cdp.NodeID{node.NodeID}, chromedp.ByNodeID))
}

func (s *Session) Click(ctx context.Context, el browser.Element) error {
	node, err := nodeOf(el)
	if err != nil {
		return err
	}
	err = s.run(ctx, chromedp.MouseClickNode(node))
	if err != nil {
		return fmt.Errorf("%w: %w", browser.ErrClickIntercepted, err)
	}
	return nil
}

func (s *Session) DispatchClick(ctx context.Context, el browser.Element) error {
	node, err := nodeOf(el)
	if err != nil {
		return err
	}
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithNodeID(node.NodeID).Do(ctx)
		if err != nil {
			return err
		}
		_, exception, err := runtime.CallFunctionOn(`function() { this.click(); }`).
			WithObjectID(obj.ObjectID).
			Do(ctx)
		if err != nil {
			return err
		}
		if exception != nil {
			return errors.New(exception.Text)
		}
		return nil
	}))
}

func (s *Session) ScrollBy(ctx context.Context, dx, dy int) error {
	return s.run(ctx, chromedp.Evaluate(fmt.Sprintf("window.scrollBy(%d, %d)", dx, dy), nil))
}

func (s *Session) Close() error {
	s.cancelTab()
	s.cancelAlloc()
	return nil
}
