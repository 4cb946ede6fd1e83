// Package worker は購読再同期のバックグラウンドワーカーを実装する。
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sogebot/sogebot.dev/internal/metrics"
	"github.com/sogebot/sogebot.dev/internal/model"
	"github.com/sogebot/sogebot.dev/internal/topic"
	"github.com/sogebot/sogebot.dev/internal/twitch"
)

// UserLister は再同期対象ユーザーの取得と完了記録の依存インターフェース。
type UserLister interface {
	ListAll(ctx context.Context) ([]*model.User, error)
	ListPendingReconcile(ctx context.Context) ([]*model.User, error)
	MarkReconciled(ctx context.Context, userID string, version int64) error
}

// Subscriber は購読操作の依存インターフェース。
type Subscriber interface {
	EnsureSubscribed(ctx context.Context, t topic.Topic, userID string) (twitch.SubscribeOutcome, error)
	UnsubscribeAll(ctx context.Context) error
}

// Reconciler はユーザーレジストリとEventSub購読状態を定期的に一致させる。
//
// 個々の購読作成の失敗はログに記録して続行するだけで、パス全体を
// 中断しない。失敗したユーザーはreconciled_versionが進まないため
// 次のパスで自動的に再試行される。
type Reconciler struct {
	users          UserLister
	subscriber     Subscriber
	logger         *slog.Logger
	collector      metrics.Collector
	maxConcurrency int
}

// NewReconciler はReconcilerを生成する。
func NewReconciler(users UserLister, subscriber Subscriber, logger *slog.Logger, collector metrics.Collector, maxConcurrency int) *Reconciler {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Reconciler{
		users:          users,
		subscriber:     subscriber,
		logger:         logger,
		collector:      collector,
		maxConcurrency: maxConcurrency,
	}
}

// Start は再同期ループを開始し、ctxのキャンセルまでブロックする。
//
// 起動時にまず全購読を削除してクリーンな状態から始める。前回インスタンスの
// 購読が残っていても、直後の全件パスで現在のレジストリ通りに再構築される。
// 初回は全ユーザーを対象とし、以降はintervalごとにスコープ変更が
// 未処理のユーザーだけを処理する。
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) {
	if err := r.subscriber.UnsubscribeAll(ctx); err != nil {
		// 失敗しても続行する。残った購読は重複としてHelix側で409になるだけ。
		r.logger.Error("failed to unsubscribe existing subscriptions", slog.Any("error", err))
	}

	r.RunOnce(ctx, true)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx, false)
		}
	}
}

// RunOnce は再同期パスを1回実行する。
// fullPassがtrueの場合は全ユーザー、falseの場合は未処理ユーザーのみを対象とする。
func (r *Reconciler) RunOnce(ctx context.Context, fullPass bool) {
	start := time.Now()

	var (
		users []*model.User
		err   error
	)
	if fullPass {
		users, err = r.users.ListAll(ctx)
	} else {
		users, err = r.users.ListPendingReconcile(ctx)
	}
	if err != nil {
		r.logger.Error("failed to list users for reconciliation", slog.Any("error", err))
		return
	}

	if len(users) == 0 {
		return
	}

	r.logger.Info("reconciliation pass started",
		slog.Bool("full_pass", fullPass),
		slog.Int("users", len(users)))

	semaphore := make(chan struct{}, r.maxConcurrency)
	var wg sync.WaitGroup

	for _, user := range users {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(user *model.User) {
			defer wg.Done()
			defer func() { <-semaphore }()
			r.reconcileUser(ctx, user)
		}(user)
	}
	wg.Wait()

	r.collector.ObserveReconcilePass(time.Since(start).Seconds(), len(users))
	r.logger.Info("reconciliation pass finished",
		slog.Bool("full_pass", fullPass),
		slog.Int("users", len(users)),
		slog.Duration("duration", time.Since(start)))
}

// reconcileUser は1ユーザーの全適格トピックの購読を確立する。
//
// 「既に購読済み」は成功として扱い、エラーログには決して出さない。
// いずれかのトピックが失敗した場合はreconciled_versionを進めず、
// 次のパスで全トピックを再試行する。
func (r *Reconciler) reconcileUser(ctx context.Context, user *model.User) {
	// MarkReconciledにはリスト時に観測したversionを渡す。
	// 処理中に到着したスコープ変更はこのversionを超えるため失われない。
	observedVersion := user.ScopeVersion

	allOK := true
	for _, t := range topic.EligibleFor(user.ScopeSet()) {
		outcome, err := r.subscriber.EnsureSubscribed(ctx, t, user.UserID)
		if err != nil {
			r.collector.SubscribeOutcome("failed")
			r.logger.Error("failed to subscribe",
				slog.String("user_id", user.UserID),
				slog.String("topic", t.Type),
				slog.Any("error", err))
			allOK = false
			continue
		}

		switch outcome {
		case twitch.SubscribeCreated:
			r.collector.SubscribeOutcome("created")
			r.logger.Info("subscription created",
				slog.String("user_id", user.UserID),
				slog.String("topic", t.Type))
		case twitch.SubscribeAlreadyExists:
			r.collector.SubscribeOutcome("already_exists")
			r.logger.Debug("subscription already exists",
				slog.String("user_id", user.UserID),
				slog.String("topic", t.Type))
		}
	}

	if !allOK {
		return
	}

	if err := r.users.MarkReconciled(ctx, user.UserID, observedVersion); err != nil {
		r.logger.Error("failed to mark user reconciled",
			slog.String("user_id", user.UserID),
			slog.Any("error", err))
	}
}
