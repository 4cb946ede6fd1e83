package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sogebot/sogebot.dev/internal/metrics"
	"github.com/sogebot/sogebot.dev/internal/model"
	"github.com/sogebot/sogebot.dev/internal/topic"
	"github.com/sogebot/sogebot.dev/internal/twitch"
)

// UserListerのモック
type mockUserLister struct {
	listAllFunc        func(ctx context.Context) ([]*model.User, error)
	listPendingFunc    func(ctx context.Context) ([]*model.User, error)
	markReconciledFunc func(ctx context.Context, userID string, version int64) error
}

func (m *mockUserLister) ListAll(ctx context.Context) ([]*model.User, error) {
	return m.listAllFunc(ctx)
}

func (m *mockUserLister) ListPendingReconcile(ctx context.Context) ([]*model.User, error) {
	return m.listPendingFunc(ctx)
}

func (m *mockUserLister) MarkReconciled(ctx context.Context, userID string, version int64) error {
	if m.markReconciledFunc != nil {
		return m.markReconciledFunc(ctx, userID, version)
	}
	return nil
}

// Subscriberのモック
type mockSubscriber struct {
	mu             sync.Mutex
	subscribed     []string
	ensureFunc     func(ctx context.Context, t topic.Topic, userID string) (twitch.SubscribeOutcome, error)
	unsubscribeAll func(ctx context.Context) error
}

func (m *mockSubscriber) EnsureSubscribed(ctx context.Context, t topic.Topic, userID string) (twitch.SubscribeOutcome, error) {
	m.mu.Lock()
	m.subscribed = append(m.subscribed, userID+"/"+t.Type)
	m.mu.Unlock()
	if m.ensureFunc != nil {
		return m.ensureFunc(ctx, t, userID)
	}
	return twitch.SubscribeCreated, nil
}

func (m *mockSubscriber) UnsubscribeAll(ctx context.Context) error {
	if m.unsubscribeAll != nil {
		return m.unsubscribeAll(ctx)
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// 全件パスで適格トピックが全て購読され、完了が記録されることを検証
func TestRunOnce_FullPass(t *testing.T) {
	var markedUser string
	var markedVersion int64

	users := &mockUserLister{
		listAllFunc: func(ctx context.Context) ([]*model.User, error) {
			return []*model.User{
				{UserID: "96965261", Scopes: "bits:read", ScopeVersion: 2, ReconciledVersion: 1},
			}, nil
		},
		markReconciledFunc: func(ctx context.Context, userID string, version int64) error {
			markedUser = userID
			markedVersion = version
			return nil
		},
	}
	subscriber := &mockSubscriber{}

	r := NewReconciler(users, subscriber, discardLogger(), metrics.NopCollector{}, 4)
	r.RunOnce(context.Background(), true)

	// bits:read は cheer + スコープ不要3件の計4トピック
	if len(subscriber.subscribed) != 4 {
		t.Errorf("subscribed count = %d, want 4: %v", len(subscriber.subscribed), subscriber.subscribed)
	}
	if markedUser != "96965261" {
		t.Errorf("marked user = %q, want 96965261", markedUser)
	}
	if markedVersion != 2 {
		t.Errorf("marked version = %d, want observed scope_version 2", markedVersion)
	}
}

// 差分パスはListPendingReconcileを使用することを検証
func TestRunOnce_PendingPass(t *testing.T) {
	var listedPending bool
	users := &mockUserLister{
		listAllFunc: func(ctx context.Context) ([]*model.User, error) {
			t.Error("ListAll should not be called on a pending pass")
			return nil, nil
		},
		listPendingFunc: func(ctx context.Context) ([]*model.User, error) {
			listedPending = true
			return nil, nil
		},
	}

	r := NewReconciler(users, &mockSubscriber{}, discardLogger(), metrics.NopCollector{}, 4)
	r.RunOnce(context.Background(), false)

	if !listedPending {
		t.Error("pending pass should use ListPendingReconcile")
	}
}

// 購読失敗があった場合はreconciled_versionを進めず続行することを検証
func TestRunOnce_FailureLeavesUserPending(t *testing.T) {
	users := &mockUserLister{
		listAllFunc: func(ctx context.Context) ([]*model.User, error) {
			return []*model.User{
				{UserID: "96965261", Scopes: "bits:read", ScopeVersion: 1},
			}, nil
		},
		markReconciledFunc: func(ctx context.Context, userID string, version int64) error {
			t.Error("MarkReconciled should not be called after a failure")
			return nil
		},
	}
	subscriber := &mockSubscriber{
		ensureFunc: func(ctx context.Context, tp topic.Topic, userID string) (twitch.SubscribeOutcome, error) {
			if tp.Type == "channel.cheer" {
				return twitch.SubscribeCreated, &twitch.APIError{StatusCode: 403, Message: "forbidden"}
			}
			return twitch.SubscribeCreated, nil
		},
	}

	r := NewReconciler(users, subscriber, discardLogger(), metrics.NopCollector{}, 4)
	r.RunOnce(context.Background(), true)

	// 失敗したトピック以外は試行されている（パスは中断しない）
	if len(subscriber.subscribed) != 4 {
		t.Errorf("subscribed count = %d, want 4 attempts despite failure", len(subscriber.subscribed))
	}
}

// 「既に購読済み」はエラーログに出ず、完了記録を妨げないことを検証
func TestReconcileUser_AlreadyExistsIsNotAnError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var marked bool
	users := &mockUserLister{
		listAllFunc: func(ctx context.Context) ([]*model.User, error) {
			return []*model.User{{UserID: "96965261", ScopeVersion: 1}}, nil
		},
		markReconciledFunc: func(ctx context.Context, userID string, version int64) error {
			marked = true
			return nil
		},
	}
	subscriber := &mockSubscriber{
		ensureFunc: func(ctx context.Context, tp topic.Topic, userID string) (twitch.SubscribeOutcome, error) {
			return twitch.SubscribeAlreadyExists, nil
		},
	}

	r := NewReconciler(users, subscriber, logger, metrics.NopCollector{}, 4)
	r.RunOnce(context.Background(), true)

	if !marked {
		t.Error("already-exists outcomes should still mark the user reconciled")
	}
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, `"level":"ERROR"`) {
			t.Errorf("already-exists must not be logged as error: %s", line)
		}
	}
}

// リスト取得の失敗はパスをスキップするだけでpanicしないことを検証
func TestRunOnce_ListError(t *testing.T) {
	users := &mockUserLister{
		listAllFunc: func(ctx context.Context) ([]*model.User, error) {
			return nil, errors.New("connection refused")
		},
	}

	r := NewReconciler(users, &mockSubscriber{}, discardLogger(), metrics.NopCollector{}, 4)
	r.RunOnce(context.Background(), true)
}

// 並行数の上限を超えて同時実行されないことを検証
func TestRunOnce_ConcurrencyLimit(t *testing.T) {
	const maxConcurrency = 2

	var mu sync.Mutex
	inFlight, peak := 0, 0

	userList := make([]*model.User, 10)
	for i := range userList {
		userList[i] = &model.User{UserID: string(rune('a' + i)), ScopeVersion: 1}
	}

	users := &mockUserLister{
		listAllFunc: func(ctx context.Context) ([]*model.User, error) {
			return userList, nil
		},
	}
	subscriber := &mockSubscriber{
		ensureFunc: func(ctx context.Context, tp topic.Topic, userID string) (twitch.SubscribeOutcome, error) {
			mu.Lock()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			return twitch.SubscribeCreated, nil
		},
	}

	r := NewReconciler(users, subscriber, discardLogger(), metrics.NopCollector{}, maxConcurrency)
	r.RunOnce(context.Background(), true)

	if peak > maxConcurrency {
		t.Errorf("peak concurrency = %d, want <= %d", peak, maxConcurrency)
	}
}
