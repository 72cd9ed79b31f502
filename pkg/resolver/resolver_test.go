package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/linktrace/pkg/fetcher"
)

func newTestResolver(maxDepth int) *Resolver {
	f := fetcher.NewHTTPFetcher(fetcher.Options{
		Timeout:     2 * time.Second,
		BackoffBase: time.Millisecond,
		UserAgent:   "linktrace-test",
	})
	return New(f, Options{MaxDepth: maxDepth, Timeout: 2 * time.Second})
}

func TestResolveFollowsRedirectChain(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a":
			http.Redirect(w, r, "/b", http.StatusFound)
		case "/b":
			http.Redirect(w, r, "/c", http.StatusFound)
		case "/c":
			http.Redirect(w, r, "/d", http.StatusFound)
		default:
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<p>landing</p>"))
		}
	}))
	defer server.Close()

	r := newTestResolver(0)
	tr := r.Trace(context.Background(), server.URL+"/a")
	require.NoError(t, tr.Err)
	assert.Equal(t, server.URL+"/d", tr.Final)
	assert.Len(t, tr.Hops, 3)
	assert.Equal(t, "http_302", tr.Hops[0].Via)
	assert.False(t, tr.Cycle)
	assert.False(t, tr.Truncated)
}

func TestResolveStopsAtMaxDepth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/hop/"))
		http.Redirect(w, r, fmt.Sprintf("/hop/%d", n+1), http.StatusMovedPermanently)
	}))
	defer server.Close()

	r := newTestResolver(3)
	assert.Equal(t, server.URL+"/hop/3", r.Resolve(context.Background(), server.URL+"/hop/0"))
}

func TestResolveCachesResult(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		if r.URL.Path == "/short" {
			http.Redirect(w, r, "/long", http.StatusFound)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	r := newTestResolver(0)
	first := r.Resolve(context.Background(), server.URL+"/short")
	assert.Equal(t, server.URL+"/long", first)
	before := atomic.LoadInt32(&requests)

	second := r.Resolve(context.Background(), server.URL+"/short")
	assert.Equal(t, first, second)
	assert.Equal(t, before, atomic.LoadInt32(&requests))
	assert.Equal(t, int64(1), r.Stats().CacheHits)
}

func TestResolveDetectsCycle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/x" {
			http.Redirect(w, r, "/y", http.StatusFound)
			return
		}
		http.Redirect(w, r, "/x", http.StatusFound)
	}))
	defer server.Close()

	r := newTestResolver(0)
	tr := r.Trace(context.Background(), server.URL+"/x")
	assert.True(t, tr.Cycle)
	assert.Equal(t, server.URL+"/y", tr.Final)
}

func TestResolveTransportFailureReturnsInput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	input := server.URL + "/gone/"
	server.Close()

	r := newTestResolver(0)
	assert.Equal(t, input, r.Resolve(context.Background(), input))
	assert.Equal(t, int64(1), r.Stats().Failures)

	cached, ok := r.Cache().Load(input)
	require.True(t, ok)
	assert.Equal(t, input, cached)
}

func TestResolveFollowsMetaAndScriptRedirects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/gate":
			w.Write([]byte(`<html><head><meta http-equiv="refresh" content="0;url=/js"></head></html>`))
		case "/js":
			w.Write([]byte(`<script>window.location.replace("/final?ref=1")</script>`))
		default:
			w.Write([]byte(`<p>final</p>`))
		}
	}))
	defer server.Close()

	r := newTestResolver(0)
	tr := r.Trace(context.Background(), server.URL+"/gate")
	require.NoError(t, tr.Err)
	assert.Equal(t, server.URL+"/final?ref=1", tr.Final)
	require.Len(t, tr.Hops, 2)
	assert.Equal(t, "meta_refresh", tr.Hops[0].Via)
	assert.Equal(t, "location.replace", tr.Hops[1].Via)
}

func TestResolveCountsFollowedHopsAgainstDepth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		n, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/step/"))
		if n%2 == 0 {
			http.Redirect(w, r, fmt.Sprintf("/step/%d", n+1), http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<meta http-equiv="refresh" content="0;url=/step/%d">`, n+1)
	}))
	defer server.Close()

	r := newTestResolver(2)
	tr := r.Trace(context.Background(), server.URL+"/step/0")
	require.NoError(t, tr.Err)
	require.Len(t, tr.Hops, 2)
	assert.Equal(t, "http_follow", tr.Hops[0].Via)
	assert.Equal(t, "meta_refresh", tr.Hops[1].Via)
	assert.True(t, tr.Truncated)
	assert.Equal(t, server.URL+"/step/2", tr.Final)
}

func TestResolveRejectsNonHTTP(t *testing.T) {
	r := newTestResolver(0)
	assert.Equal(t, "mailto:a@b.com", r.Resolve(context.Background(), "mailto:a@b.com"))
	assert.Equal(t, int64(0), r.Stats().Requests)
}

func TestResolveConcurrentCallsAgree(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/s" {
			time.Sleep(20 * time.Millisecond)
			http.Redirect(w, r, "/t", http.StatusFound)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	r := newTestResolver(0)
	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Resolve(context.Background(), server.URL+"/s")
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, server.URL+"/t", got)
	}
	assert.Equal(t, 1, r.Cache().Len())
}

func TestRedirectCacheWriteOnce(t *testing.T) {
	c := NewRedirectCache()
	assert.True(t, c.Store("a", "b"))
	assert.False(t, c.Store("a", "c"))
	got, ok := c.Load("a")
	assert.True(t, ok)
	assert.Equal(t, "b", got)
}
