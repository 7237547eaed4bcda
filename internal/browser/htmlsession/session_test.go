package htmlsession

import (
	"context"
	"notifyme-backend/internal/browser"
	"testing"

	"github.com/stretchr/testify/require"
)

const listing = `<html><body>
<div class="card" id="one"><a data-href="/detail"><span class="title">Dune</span></a></div>
<div class="card" id="two"><span class="title">Arrival</span>
  <button class="go" data-href="/detail">Go</button></div>
<button class="toggle" data-reveal="#panel">Open</button>
<div id="panel" hidden><span class="inner">hi</span></div>
</body></html>`

const detail = `<html><body><p class="here">detail</p></body></html>`

func setup(t testing.TB) *Session {
	fetcher := NewMapFetcher(map[string]string{
		"https://site.test/list":   listing,
		"https://site.test/detail": detail,
	})
	s := New(fetcher)
	require.NoError(t, s.Navigate(context.Background(), "https://site.test/list"))
	return s
}

func TestScopedQuery(t *testing.T) {
	ctx := context.Background()
	s := setup(t)

	cards, err := s.QueryAll(ctx, nil, ".card")
	require.NoError(t, err)
	require.Len(t, cards, 2)

	titles, err := s.QueryAll(ctx, cards[1], ".title")
	require.NoError(t, err)
	require.Len(t, titles, 1)
	text, err := s.Text(ctx, titles[0])
	require.NoError(t, err)
	require.Equal(t, "Arrival", text)

	inside, err := s.Contains(ctx, cards[1], titles[0])
	require.NoError(t, err)
	require.True(t, inside)
	inside, err = s.Contains(ctx, cards[0], titles[0])
	require.NoError(t, err)
	require.False(t, inside)
}

func TestClicks(t *testing.T) {
	ctx := context.Background()
	s := setup(t)

	buttons, err := s.QueryAll(ctx, nil, "button.go")
	require.NoError(t, err)
	require.NoError(t, s.DispatchClick(ctx, buttons[0]))
	url, err := s.CurrentURL(ctx)
	require.NoError(t, err)
	require.Equal(t, "https://site.test/detail", url)

	// elements from the previous page are stale after navigating
	_, err = s.Text(ctx, buttons[0])
	require.ErrorIs(t, err, browser.ErrStaleElement)
	require.ErrorIs(t, s.Click(ctx, buttons[0]), browser.ErrStaleElement)

	// a click inside an anchor follows the data-href of the anchor
	s = setup(t)
	titles, err := s.QueryAll(ctx, nil, "#one .title")
	require.NoError(t, err)
	require.NoError(t, s.Click(ctx, titles[0]))
	url, err = s.CurrentURL(ctx)
	require.NoError(t, err)
	require.Equal(t, "https://site.test/detail", url)
	require.Equal(t, []string{"span:true"}, s.Clicks())
}

func TestReveal(t *testing.T) {
	ctx := context.Background()
	s := setup(t)

	inner, err := s.QueryAll(ctx, nil, ".inner")
	require.NoError(t, err)
	visible, err := s.Visible(ctx, inner[0])
	require.NoError(t, err)
	require.False(t, visible)

	toggle, err := s.QueryAll(ctx, nil, ".toggle")
	require.NoError(t, err)
	require.NoError(t, s.Click(ctx, toggle[0]))

	visible, err = s.Visible(ctx, inner[0])
	require.NoError(t, err)
	require.True(t, visible)
	require.Equal(t, []string{"button:true"}, s.Clicks())
}

func TestMapFetcherSequence(t *testing.T) {
	f := NewMapFetcher(nil)
	f.Sequence("u", "a", "b")

	for _, expect := range []string{"a", "b", "b"} {
		body, _, err := f.Fetch(context.Background(), "u")
		require.NoError(t, err)
		require.Equal(t, expect, body)
	}
	require.Equal(t, 3, f.Hits("u"))

	_, _, err := f.Fetch(context.Background(), "missing")
	require.Error(t, err)
}
