package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sogebot/sogebot.dev/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, userID string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, scopes, scope_version, reconciled_version, created_at, updated_at
		 FROM eventsub_users WHERE user_id = $1`,
		userID,
	).Scan(&user.UserID, &user.Scopes, &user.ScopeVersion, &user.ReconciledVersion,
		&user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	return user, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO eventsub_users (user_id, scopes) VALUES ($1, $2)`,
		user.UserID, user.Scopes,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateScopes はスコープを更新し、scope_versionを1増やす。
func (r *PostgresUserRepo) UpdateScopes(ctx context.Context, userID, scopes string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE eventsub_users
		 SET scopes = $2, scope_version = scope_version + 1, updated_at = now()
		 WHERE user_id = $1`,
		userID, scopes,
	)
	if err != nil {
		return fmt.Errorf("failed to update scopes: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", userID)
	}
	return nil
}

// ListAll は全ユーザーを返す。
func (r *PostgresUserRepo) ListAll(ctx context.Context) ([]*model.User, error) {
	return r.list(ctx,
		`SELECT user_id, scopes, scope_version, reconciled_version, created_at, updated_at
		 FROM eventsub_users ORDER BY user_id`)
}

// ListPendingReconcile は未処理のスコープ変更を持つユーザーを返す。
func (r *PostgresUserRepo) ListPendingReconcile(ctx context.Context) ([]*model.User, error) {
	return r.list(ctx,
		`SELECT user_id, scopes, scope_version, reconciled_version, created_at, updated_at
		 FROM eventsub_users WHERE scope_version > reconciled_version ORDER BY user_id`)
}

func (r *PostgresUserRepo) list(ctx context.Context, query string) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user := &model.User{}
		if err := rows.Scan(&user.UserID, &user.Scopes, &user.ScopeVersion,
			&user.ReconciledVersion, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}

	return users, nil
}

// MarkReconciled はreconciled_versionを観測済みversionまで進める。
// 条件 reconciled_version < $2 により、並行する別パスが
// より新しいversionを記録済みの場合は巻き戻さない。
func (r *PostgresUserRepo) MarkReconciled(ctx context.Context, userID string, version int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE eventsub_users SET reconciled_version = $2
		 WHERE user_id = $1 AND reconciled_version < $2`,
		userID, version,
	)
	if err != nil {
		return fmt.Errorf("failed to mark user reconciled: %w", err)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
