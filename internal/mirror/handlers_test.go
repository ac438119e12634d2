package mirror

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
)

type fakeBroadcaster struct {
	mu       sync.Mutex
	messages map[string][]interface{}
}

func (f *fakeBroadcaster) Broadcast(msgType string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.messages == nil {
		f.messages = make(map[string][]interface{})
	}
	f.messages[msgType] = append(f.messages[msgType], payload)
	return nil
}

func TestHandlers_TestBroadcastsProbeNarration(t *testing.T) {
	fetcher := &fakeFetcher{failing: map[string]bool{"http://a.example": true}}
	manager := newTestManager(fetcher, "http://a.example", "http://b.example")
	broadcaster := &fakeBroadcaster{}
	h := NewHandlers(manager, broadcaster)

	e := echo.New()
	req := httptest.NewRequest("POST", "/api/v1/mirrors/test", nil)
	rec := httptest.NewRecorder()

	if err := h.Test(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()

	statuses := broadcaster.messages["mirror:status"]
	if len(statuses) != 2 {
		t.Fatalf("expected one status per mirror, got %v", statuses)
	}
	first, ok := statuses[0].(map[string]string)
	if !ok || !strings.HasPrefix(first["message"], "Contacting mirror 1/2") {
		t.Errorf("unexpected first status %v", statuses[0])
	}

	if len(broadcaster.messages["mirror:result"]) != 1 {
		t.Errorf("expected a final result broadcast, got %v", broadcaster.messages["mirror:result"])
	}
}
