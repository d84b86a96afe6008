package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"crm-workflow/domain"
)

const (
	deviceHeader = "X-Basecrm-Device-UUID"
	mainQueue    = "main"
	ackTimeout   = 30 * time.Second
)

// Handler receives each change record of a sync pass.
type Handler func(ctx context.Context, rec domain.ChangeRecord) domain.Result

// FetchStats summarises a drained sync session.
type FetchStats struct {
	Session string
	Pages   int
	Records int
	Acked   int
}

// Sync drains the change feed for a device. The server keeps the position;
// acknowledging records is what advances it.
type Sync struct {
	client *Client
	device string
}

func NewSync(c *Client, deviceUUID string) (*Sync, error) {
	if deviceUUID == "" {
		return nil, errors.New("crm: missing device uuid")
	}
	return &Sync{client: c, device: deviceUUID}, nil
}

type syncSession struct {
	ID string `json:"id"`
}

type syncItem struct {
	Data json.RawMessage `json:"data"`
	Meta struct {
		Type string `json:"type"`
		Sync struct {
			EventType string `json:"event_type"`
			AckKey    string `json:"ack_key"`
			Revision  int64  `json:"revision"`
		} `json:"sync"`
	} `json:"meta"`
}

type syncPage struct {
	Items []syncItem `json:"items"`
}

type ackBody struct {
	AckKeys []string `json:"ack_keys"`
}

// Fetch starts a session and passes every pending record to h, acknowledging
// those h accepts after each page. It returns once the queue is drained.
func (s *Sync) Fetch(ctx context.Context, h Handler) (FetchStats, error) {
	var stats FetchStats
	session, err := s.start(ctx)
	if err != nil {
		return stats, err
	}
	if session == "" {
		log.Debug("sync: nothing to synchronise")
		return stats, nil
	}
	stats.Session = session
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		items, err := s.page(ctx, session)
		if err != nil {
			return stats, err
		}
		if len(items) == 0 {
			return stats, nil
		}
		stats.Pages++
		keys := make([]string, 0, len(items))
		for _, it := range items {
			stats.Records++
			rec := domain.ChangeRecord{
				EntityType: it.Meta.Type,
				EventType:  it.Meta.Sync.EventType,
				Data:       it.Data,
				AckKey:     it.Meta.Sync.AckKey,
				Revision:   it.Meta.Sync.Revision,
			}
			if h(ctx, rec) == domain.Ack && rec.AckKey != "" {
				keys = append(keys, rec.AckKey)
			}
		}
		if err := s.ack(ctx, keys); err != nil {
			return stats, err
		}
		stats.Acked += len(keys)
	}
}

func (s *Sync) headers() http.Header {
	h := http.Header{}
	h.Set(deviceHeader, s.device)
	return h
}

func (s *Sync) start(ctx context.Context) (string, error) {
	var env envelope[syncSession]
	status, err := s.client.do(ctx, request{method: http.MethodPost, path: "/v2/sync/start", header: s.headers()}, &env)
	if err != nil {
		return "", fmt.Errorf("sync start: %w", err)
	}
	if status == http.StatusNoContent {
		return "", nil
	}
	return env.Data.ID, nil
}

func (s *Sync) page(ctx context.Context, session string) ([]syncItem, error) {
	var p syncPage
	path := fmt.Sprintf("/v2/sync/%s/queues/%s", session, mainQueue)
	status, err := s.client.do(ctx, request{method: http.MethodGet, path: path, header: s.headers()}, &p)
	if err != nil {
		return nil, fmt.Errorf("sync fetch: %w", err)
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	return p.Items, nil
}

func (s *Sync) ack(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	// acknowledge what was processed even when the run is shutting down
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer cancel()
	req := request{method: http.MethodPost, path: "/v2/sync/ack", body: ackBody{AckKeys: keys}, header: s.headers()}
	if _, err := s.client.do(ctx, req, nil); err != nil {
		return fmt.Errorf("sync ack: %w", err)
	}
	return nil
}
