package eventbus

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

func TestNewWithoutAddrIsNop(t *testing.T) {
	p, err := New(logger.Nop(), Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Publish(context.Background(), Event{Type: VettingCompleted}); err != nil {
		t.Fatalf("nop publish: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("nop close: %v", err)
	}
}

func TestEncode(t *testing.T) {
	mediaID := uuid.New()
	discoveryID := uuid.New()
	raw, err := Encode(Event{Type: VettingFailed, MediaID: mediaID, DiscoveryID: &discoveryID, Data: map[string]any{"error": "llm timeout"}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["type"] != "vetting.failed" || got["media_id"] != mediaID.String() || got["discovery_id"] != discoveryID.String() {
		t.Fatalf("payload=%s", raw)
	}
	if _, ok := got["campaign_id"]; ok {
		t.Fatalf("nil campaign_id should be omitted: %s", raw)
	}
	if got["at"] == "" || got["at"] == nil {
		t.Fatalf("timestamp not stamped: %s", raw)
	}
	if _, err := Encode(Event{}); err == nil {
		t.Fatalf("untyped event should be rejected")
	}
}
