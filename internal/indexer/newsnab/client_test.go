package newsnab

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/datallboy/gonzb/internal/indexer"
)

const sampleSearchRSS = `<?xml version="1.0"?>
<rss version="2.0" xmlns:newznab="http://www.newznab.com/DTD/2010/feeds/attributes/">
<channel>
<title>Test Indexer</title>
<item>
<title>Some.Release.1080p</title>
<guid isPermaLink="false">guid-1</guid>
<link>http://indexer.example/get/guid-1</link>
<pubDate>Mon, 02 Jan 2006 15:04:05 -0700</pubDate>
<newznab:attr name="size" value="123456"/>
<newznab:attr name="category" value="5030"/>
</item>
</channel>
</rss>
`

func TestClient_Search_ParsesItemsIntoSearchResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(sampleSearchRSS))
	}))
	defer srv.Close()

	c := New("testidx", srv.URL, "apikey123", true)
	results, err := c.Search(context.Background(), "some query")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	r := results[0]
	if r.Title != "Some.Release.1080p" {
		t.Fatalf("unexpected title: %q", r.Title)
	}
	if r.Size != 123456 {
		t.Fatalf("expected size 123456, got %d", r.Size)
	}
	if r.Category != "5030" {
		t.Fatalf("expected category 5030, got %q", r.Category)
	}
	if r.Source != "testidx" {
		t.Fatalf("expected source testidx, got %q", r.Source)
	}
	if !r.RedirectAllowed {
		t.Fatal("expected RedirectAllowed to carry the client's redirect setting")
	}
	if r.ID == "" {
		t.Fatal("expected a composite ID to have been assigned")
	}
}

func TestClient_Search_NonOKStatusReturnsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New("testidx", srv.URL, "apikey123", false)
	_, err := c.Search(context.Background(), "q")
	if err == nil {
		t.Fatal("expected an error on a non-200 response")
	}
}

func TestClient_DownloadNZB_ReturnsBodyOnSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("apikey") != "apikey123" {
			t.Errorf("expected apikey forwarded, got query %q", r.URL.RawQuery)
		}
		w.Write([]byte("<nzb/>"))
	}))
	defer srv.Close()

	c := New("testidx", srv.URL, "apikey123", false)
	rc, err := c.DownloadNZB(context.Background(), indexer.SearchResult{DownloadURL: srv.URL + "/get?id=1"})
	if err != nil {
		t.Fatalf("DownloadNZB: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "<nzb/>" {
		t.Fatalf("expected <nzb/>, got %q", data)
	}
}
