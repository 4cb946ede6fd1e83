package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sogebot/sogebot.dev/internal/model"
)

// PostgresEventRepo はPostgreSQLを使用したイベントリポジトリ。
type PostgresEventRepo struct {
	db *sql.DB
}

// NewPostgresEventRepo はPostgresEventRepoを生成する。
func NewPostgresEventRepo(db *sql.DB) *PostgresEventRepo {
	return &PostgresEventRepo{db: db}
}

// Insert は通知イベントを1件追記する。
// created_atはデータベースのnow()が付与するため、
// 同一ユーザーのイベントは挿入順に単調非減少のタイムスタンプを持つ。
func (r *PostgresEventRepo) Insert(ctx context.Context, event *model.Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO eventsub_events (id, user_id, event_type, payload)
		 VALUES ($1, $2, $3, $4)`,
		event.ID, event.UserID, event.EventType, event.Payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// claimOldestQuery は読み取りと削除を単一文で行うクレームSQL。
// SELECTとDELETEを別文に分けると、至多1回配信の保証が失われる。
const claimOldestQuery = `DELETE FROM eventsub_events
	 WHERE id = (
	     SELECT id FROM eventsub_events
	     WHERE user_id = $1
	     ORDER BY created_at ASC, id ASC
	     LIMIT 1
	     FOR UPDATE SKIP LOCKED
	 )
	 RETURNING id, user_id, event_type, payload, created_at`

// ClaimOldest は最古の未配信イベントを読み取りと同時に削除する。
//
// サブクエリのFOR UPDATE SKIP LOCKEDにより、同一ユーザーへの並行クレームは
// 一方だけが行をロックして削除し、もう一方は行をスキップして空振りする。
// 読み取りと削除が単一文のため、配信済みイベントが残ることも
// 未配信イベントが失われることもない。キューが空の場合はnilを返す。
func (r *PostgresEventRepo) ClaimOldest(ctx context.Context, userID string) (*model.Event, error) {
	event := &model.Event{}
	err := r.db.QueryRowContext(ctx, claimOldestQuery, userID).
		Scan(&event.ID, &event.UserID, &event.EventType, &event.Payload, &event.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim event: %w", err)
	}

	return event, nil
}

// compile-time interface check
var _ EventRepository = (*PostgresEventRepo)(nil)
