package ingest

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/sogebot/sogebot.dev/internal/metrics"
	"github.com/sogebot/sogebot.dev/internal/model"
)

// EventRepositoryのモック
type mockEventRepo struct {
	insertFunc func(ctx context.Context, event *model.Event) error
}

func (m *mockEventRepo) Insert(ctx context.Context, event *model.Event) error {
	return m.insertFunc(ctx, event)
}

func (m *mockEventRepo) ClaimOldest(ctx context.Context, userID string) (*model.Event, error) {
	return nil, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// 通知がボディ全体をペイロードとしてキューに入ることを検証
func TestHandleNotification_Ingests(t *testing.T) {
	var inserted *model.Event
	events := &mockEventRepo{
		insertFunc: func(ctx context.Context, event *model.Event) error {
			inserted = event
			return nil
		},
	}
	service := NewService(events, discardLogger(), metrics.NopCollector{})

	body := []byte(`{
		"subscription": {
			"type": "channel.cheer",
			"condition": {"broadcaster_user_id": "96965261"}
		},
		"event": {"user_name": "viewer", "bits": 100}
	}`)

	if err := service.HandleNotification(context.Background(), body); err != nil {
		t.Fatalf("HandleNotification failed: %v", err)
	}

	if inserted == nil {
		t.Fatal("event should be inserted")
	}
	if inserted.UserID != "96965261" {
		t.Errorf("UserID = %q, want 96965261", inserted.UserID)
	}
	if inserted.EventType != "channel.cheer" {
		t.Errorf("EventType = %q, want channel.cheer", inserted.EventType)
	}
	if inserted.ID == "" {
		t.Error("event ID should be generated")
	}
	if string(inserted.Payload) != string(body) {
		t.Error("payload should be the full notification body")
	}
}

// 条件キーのフォールバック順を検証
func TestResolveUserID_FallbackChain(t *testing.T) {
	tests := []struct {
		name      string
		condition map[string]string
		want      string
	}{
		{
			name:      "配信者ID",
			condition: map[string]string{"broadcaster_user_id": "1"},
			want:      "1",
		},
		{
			name:      "レイド受け側",
			condition: map[string]string{"to_broadcaster_user_id": "2"},
			want:      "2",
		},
		{
			name:      "レイド送り側",
			condition: map[string]string{"from_broadcaster_user_id": "3"},
			want:      "3",
		},
		{
			name:      "ユーザーID",
			condition: map[string]string{"user_id": "4"},
			want:      "4",
		},
		{
			name: "配信者IDが優先される",
			condition: map[string]string{
				"broadcaster_user_id": "1",
				"moderator_user_id":   "5",
			},
			want: "1",
		},
		{
			name:      "該当なし",
			condition: map[string]string{"moderator_user_id": "5"},
			want:      "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveUserID(tt.condition); got != tt.want {
				t.Errorf("resolveUserID = %q, want %q", got, tt.want)
			}
		})
	}
}

// 不正なボディやユーザー不明の通知はエラーになり、キューに入らないことを検証
func TestHandleNotification_Rejects(t *testing.T) {
	events := &mockEventRepo{
		insertFunc: func(ctx context.Context, event *model.Event) error {
			t.Error("Insert should not be called")
			return nil
		},
	}
	service := NewService(events, discardLogger(), metrics.NopCollector{})

	tests := []struct {
		name string
		body string
	}{
		{"不正なJSON", `{not json`},
		{"タイプなし", `{"subscription":{"condition":{"broadcaster_user_id":"1"}}}`},
		{"ユーザー不明", `{"subscription":{"type":"channel.cheer","condition":{}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := service.HandleNotification(context.Background(), []byte(tt.body)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
