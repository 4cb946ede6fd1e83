// Package ingest はEventSub通知の取り込みを実装する。
// 検証済みの通知ボディを解析し、対象ユーザーのイベントキューに追記する。
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/sogebot/sogebot.dev/internal/metrics"
	"github.com/sogebot/sogebot.dev/internal/model"
	"github.com/sogebot/sogebot.dev/internal/repository"
)

// notification はEventSub通知ボディのうち取り込みに必要な部分。
type notification struct {
	Subscription struct {
		Type      string            `json:"type"`
		Condition map[string]string `json:"condition"`
	} `json:"subscription"`
	Event json.RawMessage `json:"event"`
}

// Service は通知取り込みサービス。
type Service struct {
	events    repository.EventRepository
	logger    *slog.Logger
	collector metrics.Collector
}

// NewService はServiceを生成する。
func NewService(events repository.EventRepository, logger *slog.Logger, collector metrics.Collector) *Service {
	return &Service{
		events:    events,
		logger:    logger,
		collector: collector,
	}
}

// HandleNotification は検証済みの通知ボディをキューに追記する。
//
// 対象ユーザーは購読条件から解決する。レイドのように配信者IDを
// 持たないトピックがあるため、条件キーを順にフォールバックする。
// ペイロードには受信ボディ全体をそのまま保存し、
// ポーリングクライアントは購読タイプとイベント本体の両方を受け取れる。
func (s *Service) HandleNotification(ctx context.Context, body []byte) error {
	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		return fmt.Errorf("failed to parse notification: %w", err)
	}
	if n.Subscription.Type == "" {
		return fmt.Errorf("notification has empty subscription type")
	}

	userID := resolveUserID(n.Subscription.Condition)
	if userID == "" {
		return fmt.Errorf("notification for %s has no user in condition", n.Subscription.Type)
	}

	event := &model.Event{
		ID:        uuid.NewString(),
		UserID:    userID,
		EventType: n.Subscription.Type,
		Payload:   body,
	}

	if err := s.events.Insert(ctx, event); err != nil {
		return err
	}

	s.collector.EventIngested(n.Subscription.Type)
	s.logger.Debug("notification ingested",
		slog.String("user_id", userID),
		slog.String("event_type", n.Subscription.Type),
		slog.String("event_id", event.ID))

	return nil
}

// resolveUserID は購読条件から配信先ユーザーIDを解決する。
func resolveUserID(condition map[string]string) string {
	for _, key := range []string{
		"broadcaster_user_id",
		"to_broadcaster_user_id",
		"from_broadcaster_user_id",
		"user_id",
	} {
		if id := condition[key]; id != "" {
			return id
		}
	}
	return ""
}
