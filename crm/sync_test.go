package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"

	"crm-workflow/domain"
)

type fakeFeed struct {
	mu      sync.Mutex
	pages   []string
	served  int
	acked   [][]string
	devices []string
	noStart bool
}

func (f *fakeFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = append(f.devices, r.Header.Get(deviceHeader))
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v2/sync/start":
		if f.noStart {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"data":{"id":"s1","queues":[{"data":{"name":"main","pages":1}}]}}`)
	case r.Method == http.MethodGet && r.URL.Path == "/v2/sync/s1/queues/main":
		if f.served >= len(f.pages) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		fmt.Fprint(w, f.pages[f.served])
		f.served++
	case r.Method == http.MethodPost && r.URL.Path == "/v2/sync/ack":
		raw, _ := io.ReadAll(r.Body)
		var body struct {
			Data struct {
				AckKeys []string `json:"ack_keys"`
			} `json:"data"`
		}
		json.Unmarshal(raw, &body)
		f.acked = append(f.acked, body.Data.AckKeys)
		w.WriteHeader(http.StatusAccepted)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func item(entity, event, key, data string) string {
	return fmt.Sprintf(`{"data":%s,"meta":{"type":%q,"sync":{"event_type":%q,"ack_key":%q,"revision":1}}}`, data, entity, event, key)
}

func TestSyncFetchDeliversAndAcknowledges(t *testing.T) {
	feed := &fakeFeed{pages: []string{
		`{"items":[` + item("contact", "created", "c1", `{"id":3,"is_organization":true}`) + `,` + item("lead", "updated", "l1", `{"id":5}`) + `]}`,
		`{"items":[` + item("deal", "updated", "d1", `{"id":9,"stage_id":5}`) + `]}`,
	}}
	c := newTestClient(t, feed)
	s, err := NewSync(c, "device-1")
	if err != nil {
		t.Fatalf("new sync: %v", err)
	}

	var got []domain.ChangeRecord
	stats, err := s.Fetch(context.Background(), func(ctx context.Context, rec domain.ChangeRecord) domain.Result {
		got = append(got, rec)
		if rec.EntityType == "lead" {
			return domain.Skip
		}
		return domain.Ack
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 3 || got[0].EntityType != domain.EntityContact || got[0].EventType != domain.EventCreated || got[2].EntityType != domain.EntityDeal {
		t.Fatalf("unexpected records %#v", got)
	}
	var contact domain.Contact
	if err := json.Unmarshal(got[0].Data, &contact); err != nil || contact.ID != 3 {
		t.Fatalf("payload not preserved: %s", got[0].Data)
	}
	if len(feed.acked) != 2 || len(feed.acked[0]) != 1 || feed.acked[0][0] != "c1" || feed.acked[1][0] != "d1" {
		t.Fatalf("unexpected acks %#v", feed.acked)
	}
	if stats.Session != "s1" || stats.Pages != 2 || stats.Records != 3 || stats.Acked != 2 {
		t.Fatalf("unexpected stats %#v", stats)
	}
	for _, d := range feed.devices {
		if d != "device-1" {
			t.Fatalf("device header = %q", d)
		}
	}
}

func TestSyncFetchNothingToSync(t *testing.T) {
	feed := &fakeFeed{noStart: true}
	c := newTestClient(t, feed)
	s, _ := NewSync(c, "device-1")

	called := false
	stats, err := s.Fetch(context.Background(), func(ctx context.Context, rec domain.ChangeRecord) domain.Result {
		called = true
		return domain.Ack
	})
	if err != nil || called || stats.Session != "" {
		t.Fatalf("unexpected fetch result %#v, %v", stats, err)
	}
}

func TestSyncFetchStartFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	s, _ := NewSync(c, "device-1")
	if _, err := s.Fetch(context.Background(), func(ctx context.Context, rec domain.ChangeRecord) domain.Result { return domain.Ack }); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNewSyncRequiresDevice(t *testing.T) {
	c, _ := New(Config{AccessToken: "t"})
	if _, err := NewSync(c, ""); err == nil {
		t.Fatalf("expected error for missing device uuid")
	}
}
