package sqlite_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/plaenen/projector/pkg/domain"
	"github.com/plaenen/projector/pkg/store"
	"github.com/plaenen/projector/pkg/store/sqlite"
)

func openTestEventStore(t *testing.T) *sqlite.EventStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "events.db")
	es, err := sqlite.NewEventStore(dsn)
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { es.Close() })
	return es
}

func TestEventStore_AppendAndLoad(t *testing.T) {
	ctx := context.Background()
	es := openTestEventStore(t)

	t.Run("AppendAssignsStreamNumbers", func(t *testing.T) {
		events := []*domain.Event{
			{Name: "Opened", Payload: json.RawMessage(`{"a":1}`)},
			{Name: "Updated", Payload: json.RawMessage(`{"a":2}`)},
		}
		if err := es.AppendTo(ctx, "acct-1", events); err != nil {
			t.Fatalf("append: %v", err)
		}
		if events[0].No != 1 || events[1].No != 2 {
			t.Fatalf("expected stream_no 1,2, got %d,%d", events[0].No, events[1].No)
		}
		if events[0].ID == "" || events[1].ID == "" {
			t.Fatalf("expected generated IDs, got empty")
		}
	})

	t.Run("HasStreamAfterAppend", func(t *testing.T) {
		has, err := es.HasStream(ctx, "acct-1")
		if err != nil {
			t.Fatalf("has stream: %v", err)
		}
		if !has {
			t.Fatalf("expected acct-1 to exist")
		}
	})

	t.Run("MergeAndLoadOrdersByGlobalSeq", func(t *testing.T) {
		if err := es.AppendTo(ctx, "acct-2", []*domain.Event{{Name: "Opened", Payload: json.RawMessage(`{}`)}}); err != nil {
			t.Fatalf("append: %v", err)
		}

		it, err := es.MergeAndLoad(ctx, []store.StreamQuery{
			{Stream: "acct-1", FromNumber: 1},
			{Stream: "acct-2", FromNumber: 1},
		})
		if err != nil {
			t.Fatalf("merge and load: %v", err)
		}
		defer it.Close()

		var names, streams []string
		for it.Next() {
			names = append(names, it.Event().Name)
			streams = append(streams, it.Event().Metadata.Stream)
		}
		if err := it.Err(); err != nil {
			t.Fatalf("iterator error: %v", err)
		}
		if len(names) != 3 {
			t.Fatalf("expected 3 merged events, got %v", names)
		}
		wantNames := []string{"Opened", "Updated", "Opened"}
		wantStreams := []string{"acct-1", "acct-1", "acct-2"}
		for i := range wantNames {
			if names[i] != wantNames[i] || streams[i] != wantStreams[i] {
				t.Fatalf("expected global_seq order %v/%v, got %v/%v", wantNames, wantStreams, names, streams)
			}
		}
	})

	t.Run("DeleteStreamRemovesEvents", func(t *testing.T) {
		if err := es.DeleteStream(ctx, "acct-2"); err != nil {
			t.Fatalf("delete stream: %v", err)
		}
		has, err := es.HasStream(ctx, "acct-2")
		if err != nil {
			t.Fatalf("has stream: %v", err)
		}
		if has {
			t.Fatalf("expected acct-2 to be gone")
		}
	})
}

func TestEventStore_MergeAndLoadEventNameMatcher(t *testing.T) {
	ctx := context.Background()
	es := openTestEventStore(t)

	if err := es.AppendTo(ctx, "s", []*domain.Event{
		{Name: "A", Payload: json.RawMessage(`{}`)},
		{Name: "B", Payload: json.RawMessage(`{}`)},
		{Name: "A", Payload: json.RawMessage(`{}`)},
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	it, err := es.MergeAndLoad(ctx, []store.StreamQuery{
		{Stream: "s", FromNumber: 1, Matcher: &domain.Matcher{EventNames: []string{"A"}}},
	})
	if err != nil {
		t.Fatalf("merge and load: %v", err)
	}
	defer it.Close()

	var count int
	for it.Next() {
		count++
		if it.Event().Name != "A" {
			t.Fatalf("unexpected event %q", it.Event().Name)
		}
	}
	if count != 2 {
		t.Fatalf("expected 2 A events, got %d", count)
	}
}

func TestEventStore_StreamNamesExcludesInternal(t *testing.T) {
	ctx := context.Background()
	es := openTestEventStore(t)

	if err := es.CreateStream(ctx, "public"); err != nil {
		t.Fatalf("create stream: %v", err)
	}
	if err := es.CreateStream(ctx, "$internal"); err != nil {
		t.Fatalf("create stream: %v", err)
	}

	names, err := es.StreamNames(ctx)
	if err != nil {
		t.Fatalf("stream names: %v", err)
	}
	if len(names) != 1 || names[0] != "public" {
		t.Fatalf("expected [public], got %v", names)
	}
}
