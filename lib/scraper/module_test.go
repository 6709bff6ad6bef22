package scraper

import (
	"context"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

func newCatalogModule() *Module {
	m := NewModule("catalog")
	m.RegisterScraper("item", echoBuilder)

	reviews := NewModule("reviews")
	reviews.RegisterScraper("list", echoBuilder)
	m.LoadModule("reviews", reviews)

	m.RegisterWorkflow("item-and-reviews", func(ctx context.Context, m *Module, args ...any) (any, error) {
		item, _ := m.Scraper("item")
		_, err := item.Scrape(ctx, "item-", args[0])
		if err != nil {
			return nil, err
		}
		reviews, _ := m.Module("reviews")
		list, _ := reviews.Scraper("list")
		_, err = list.Scrape(ctx, "reviews-", args[0])
		if err != nil {
			return nil, err
		}
		return []string{
			item.Get().(*resty.Response).String(),
			list.Get().(*resty.Response).String(),
		}, nil
	})
	return m
}

func TestLoadModuleBindsEngine(t *testing.T) {
	tg := newTarget(t)
	e := newEngine(t, tg)
	root := NewRoot(e)

	detached := newCatalogModule()
	loaded := root.LoadModule("m", detached)

	stored, ok := root.Module("m")
	require.True(t, ok)
	require.Same(t, loaded, stored)
	require.Same(t, e, loaded.Engine())

	item, ok := loaded.Scraper("item")
	require.True(t, ok)
	require.Same(t, e, item.Engine())

	reviews, ok := loaded.Module("reviews")
	require.True(t, ok)
	list, ok := reviews.Scraper("list")
	require.True(t, ok)
	require.Same(t, e, list.Engine())

	_, err := item.Scrape(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, int64(1), tg.hits.Load())
	require.Equal(t, "x", item.Get().(*resty.Response).String())

	// the loaded tree is a copy, the original stays detached
	require.Nil(t, detached.Engine())
	original, _ := detached.Scraper("item")
	require.Nil(t, original.Engine())
	require.Empty(t, original.History())
}

func TestLoadModuleIntoTwoEngines(t *testing.T) {
	first := newTarget(t)
	second := newTarget(t)
	firstEngine := newEngine(t, first)
	secondEngine := newEngine(t, second)

	shared := newCatalogModule()
	a := NewRoot(firstEngine).LoadModule("m", shared)
	b := NewRoot(secondEngine).LoadModule("m", shared)

	itemA, _ := a.Scraper("item")
	itemB, _ := b.Scraper("item")
	require.Same(t, firstEngine, itemA.Engine())
	require.Same(t, secondEngine, itemB.Engine())

	_, err := itemA.Scrape(context.Background(), "a")
	require.NoError(t, err)
	_, err = itemB.Scrape(context.Background(), "b")
	require.NoError(t, err)

	require.Equal(t, int64(1), first.hits.Load())
	require.Equal(t, int64(1), second.hits.Load())
	require.Len(t, itemA.History(), 1)
	require.Len(t, itemB.History(), 1)
}

func TestDetachedParentKeepsChild(t *testing.T) {
	parent := NewModule("parent")
	child := NewModule("child")
	stored := parent.LoadModule("child", child)
	require.Same(t, child, stored)

	tg := newTarget(t)
	e := newEngine(t, tg)
	bound := NewRoot(e).LoadModule("parent", parent)
	boundChild, ok := bound.Module("child")
	require.True(t, ok)
	require.Same(t, e, boundChild.Engine())
	require.Nil(t, child.Engine())
}

func TestWorkflow(t *testing.T) {
	tg := newTarget(t)
	root := NewRoot(newEngine(t, tg))
	m := root.LoadModule("catalog", newCatalogModule())

	workflow, ok := m.Workflow("item-and-reviews")
	require.True(t, ok)

	result, err := workflow(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, []string{"item-7", "reviews-7"}, result)

	_, ok = m.Workflow("missing")
	require.False(t, ok)

	// the workflow of the detached original runs against detached scrapers
	detached, _ := newCatalogModule().Workflow("item-and-reviews")
	_, err = detached(context.Background(), 7)
	require.ErrorIs(t, err, ErrDetached)
}

func TestNames(t *testing.T) {
	m := newCatalogModule()
	m.RegisterScraper("alpha", echoBuilder)

	names := m.Names()
	require.Equal(t, []string{"alpha", "item"}, names.Scrapers)
	require.Equal(t, []string{"reviews"}, names.Modules)
	require.Equal(t, []string{"item-and-reviews"}, names.Workflows)
	require.Equal(t, "catalog", m.Name())
}
