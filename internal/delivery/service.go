// Package delivery はロングポーリングによるイベント配信を実装する。
package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/sogebot/sogebot.dev/internal/metrics"
	"github.com/sogebot/sogebot.dev/internal/model"
)

// EventClaimer はイベントキューからのクレーム操作の依存インターフェース。
type EventClaimer interface {
	ClaimOldest(ctx context.Context, userID string) (*model.Event, error)
}

// Service はロングポーリング配信サービス。
//
// クレームは即時に1回試行し、その後はintervalごとにmaxWaitまで再試行する。
// イベントの取得に成功した時点でそのイベントはキューから削除済みのため、
// 同じイベントが別のポーリングに二重配信されることはない。
type Service struct {
	events    EventClaimer
	logger    *slog.Logger
	collector metrics.Collector
	interval  time.Duration
	maxWait   time.Duration
}

// NewService はServiceを生成する。
func NewService(events EventClaimer, logger *slog.Logger, collector metrics.Collector, interval, maxWait time.Duration) *Service {
	return &Service{
		events:    events,
		logger:    logger,
		collector: collector,
		interval:  interval,
		maxWait:   maxWait,
	}
}

// Poll は指定ユーザーの最古の未配信イベントを待ち受ける。
//
// イベントをクレームできた場合はそれを返す。maxWait経過またはctxの
// キャンセル（クライアント切断を含む)までイベントが現れなかった場合は
// (nil, nil)を返し、呼び出し側は「イベントなし」として扱う。
// ストレージエラーは待機を打ち切ってそのまま返す。
func (s *Service) Poll(ctx context.Context, userID string) (*model.Event, error) {
	start := time.Now()
	defer func() {
		s.collector.ObservePollDuration(time.Since(start).Seconds())
	}()

	deadline := time.NewTimer(s.maxWait)
	defer deadline.Stop()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		event, err := s.events.ClaimOldest(ctx, userID)
		if err != nil {
			// クレーム実行中に切断された場合もイベントなしとして扱う。
			// ストレージ層はキャンセルをラップしたエラーで返すため、
			// エラー種別ではなくctx自身の状態で判定する。
			if ctx.Err() != nil {
				return nil, nil
			}
			return nil, err
		}
		if event != nil {
			s.collector.EventClaimed()
			s.logger.Debug("event claimed",
				slog.String("user_id", userID),
				slog.String("event_type", event.EventType))
			return event, nil
		}

		select {
		case <-ctx.Done():
			// クライアント切断はイベントなしと同じ扱い
			return nil, nil
		case <-deadline.C:
			s.collector.PollExpired()
			return nil, nil
		case <-ticker.C:
		}
	}
}
