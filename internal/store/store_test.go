package store

import (
	"context"
	"io"
	"testing"

	"github.com/datallboy/gonzb/internal/indexer"
)

func TestPersistentStore_SaveAndGetRelease(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	rel := indexer.SearchResult{ID: "rel1", Title: "Some Release", Source: "nzbidx", Size: 12345}
	if err := s.SaveReleases(ctx, []indexer.SearchResult{rel}); err != nil {
		t.Fatalf("SaveReleases: %v", err)
	}

	got, err := s.GetRelease(ctx, "rel1")
	if err != nil {
		t.Fatalf("GetRelease: %v", err)
	}
	if got.Title != "Some Release" || got.Size != 12345 {
		t.Fatalf("unexpected release: %+v", got)
	}
}

func TestPersistentStore_SaveReleases_EmptyIsNoop(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	if err := s.SaveReleases(context.Background(), nil); err != nil {
		t.Fatalf("expected no error saving an empty batch, got %v", err)
	}
}

func TestPersistentStore_NZBBlob_WriteThenReadThenExists(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	if s.Exists("blob1") {
		t.Fatal("expected blob1 not to exist before being written")
	}

	w, err := s.CreateNZBWriter("blob1")
	if err != nil {
		t.Fatalf("CreateNZBWriter: %v", err)
	}
	if _, err := w.Write([]byte("<nzb/>")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if !s.Exists("blob1") {
		t.Fatal("expected blob1 to exist after being written")
	}

	r, err := s.GetNZBReader("blob1")
	if err != nil {
		t.Fatalf("GetNZBReader: %v", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "<nzb/>" {
		t.Fatalf("expected <nzb/>, got %q", data)
	}
}
