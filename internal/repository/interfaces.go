// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/sogebot/sogebot.dev/internal/model"
)

// UserRepository はEventSubユーザーレジストリの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID string) (*model.User, error)

	// Create はユーザーを作成する。scope_versionは1、reconciled_versionは0で始まり、
	// 作成直後のユーザーは必ず再同期対象になる。
	Create(ctx context.Context, user *model.User) error

	// UpdateScopes はスコープを更新し、scope_versionを1増やす。
	// updated_atも更新する。スコープが変わった場合のみ呼ぶこと。
	UpdateScopes(ctx context.Context, userID, scopes string) error

	// ListAll は全ユーザーを返す。初回の再同期パスで使用する。
	ListAll(ctx context.Context) ([]*model.User, error)

	// ListPendingReconcile は scope_version > reconciled_version のユーザーを返す。
	// 2回目以降の差分再同期パスで使用する。
	ListPendingReconcile(ctx context.Context) ([]*model.User, error)

	// MarkReconciled はreconciled_versionを読み取り時に観測したversionまで進める。
	// 観測後に到着したスコープ変更はversionを超えているため対象に残り、
	// 再同期シグナルが失われることはない。
	MarkReconciled(ctx context.Context, userID string, version int64) error
}

// EventRepository はEventSub通知キューの永続化インターフェース。
type EventRepository interface {
	// Insert は通知イベントを1件追記する。created_atはデータベースが付与する。
	Insert(ctx context.Context, event *model.Event) error

	// ClaimOldest は指定ユーザーの最古の未配信イベントを読み取りと同時に削除する。
	// 読み取りと削除は単一文で行われ、同一ユーザーへの並行クレームでも
	// 同じイベントが二重に配信されることはない。キューが空の場合はnilを返す。
	ClaimOldest(ctx context.Context, userID string) (*model.Event, error)
}
