package fetcher

import (
	"context"
	"errors"
	"testing"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrowserLaunchFailureIsRetried(t *testing.T) {
	b := NewBrowserFetcher(BrowserOptions{}, nil)
	calls := 0
	b.launchFn = func(context.Context) (*rod.Browser, *launcher.Launcher, error) {
		calls++
		if calls == 1 {
			return nil, nil, errors.New("download browser: timeout")
		}
		return rod.New(), nil, nil
	}

	_, err := b.ensure()
	require.Error(t, err)

	browser, err := b.ensure()
	require.NoError(t, err)
	require.NotNil(t, browser)

	again, err := b.ensure()
	require.NoError(t, err)
	assert.Same(t, browser, again)
	assert.Equal(t, 2, calls)
}

func TestBrowserLaunchOutlivesPageContext(t *testing.T) {
	b := NewBrowserFetcher(BrowserOptions{}, nil)
	var launchErr error
	b.launchFn = func(ctx context.Context) (*rod.Browser, *launcher.Launcher, error) {
		launchErr = ctx.Err()
		return nil, nil, errors.New("no chromium")
	}

	pageCtx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Fetch(pageCtx, "https://example.com/")

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "https://example.com/", fe.URL)
	assert.NoError(t, launchErr)
}

func TestBrowserStartReportsLaunchError(t *testing.T) {
	b := NewBrowserFetcher(BrowserOptions{}, nil)
	b.launchFn = func(context.Context) (*rod.Browser, *launcher.Launcher, error) {
		return nil, nil, errors.New("launch browser: exec failed")
	}
	assert.EqualError(t, b.Start(context.Background()), "launch browser: exec failed")
}
