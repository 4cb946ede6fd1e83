// Package registration はユーザー登録のユースケースを実装する。
// OAuthトークン検証で本人性とスコープを確定し、ユーザーレジストリに反映する。
package registration

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sogebot/sogebot.dev/internal/model"
	"github.com/sogebot/sogebot.dev/internal/repository"
	"github.com/sogebot/sogebot.dev/internal/twitch"
)

// TokenValidator はOAuthトークン検証の依存インターフェース。
type TokenValidator interface {
	ValidateToken(ctx context.Context, authorization string) (*twitch.TokenInfo, error)
}

// Result は登録操作の結果を表す。
type Result struct {
	UserID  string `json:"userId"`
	Created bool   `json:"created"`
	Updated bool   `json:"updated"`
}

// Service はユーザー登録サービス。
type Service struct {
	validator TokenValidator
	users     repository.UserRepository
	logger    *slog.Logger
}

// NewService はServiceを生成する。
func NewService(validator TokenValidator, users repository.UserRepository, logger *slog.Logger) *Service {
	return &Service{
		validator: validator,
		users:     users,
		logger:    logger,
	}
}

// Register はベアラークレデンシャルを検証し、ユーザーをレジストリに登録する。
//
// ユーザーIDはリクエストボディではなくトークン検証の結果から取得するため、
// 他人のIDを名乗った登録はできない。スコープは正規化して保存し、
// 既存ユーザーのスコープ集合が変わっていなければ何も書き込まない。
// 変わっていた場合はscope_versionが進み、次の再同期パスの対象になる。
func (s *Service) Register(ctx context.Context, authorization string) (*Result, error) {
	info, err := s.validator.ValidateToken(ctx, authorization)
	if err != nil {
		return nil, err
	}

	normalized := model.NormalizeScopes(info.Scopes)

	existing, err := s.users.FindByID(ctx, info.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if existing == nil {
		user := &model.User{
			UserID: info.UserID,
			Scopes: normalized,
		}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		s.logger.Info("user registered",
			slog.String("user_id", info.UserID),
			slog.String("login", info.Login))
		return &Result{UserID: info.UserID, Created: true}, nil
	}

	if existing.Scopes == normalized {
		// スコープが変わっていない再登録は何もしない
		return &Result{UserID: info.UserID}, nil
	}

	if err := s.users.UpdateScopes(ctx, info.UserID, normalized); err != nil {
		return nil, fmt.Errorf("failed to update scopes: %w", err)
	}
	s.logger.Info("user scopes updated",
		slog.String("user_id", info.UserID),
		slog.String("login", info.Login))

	return &Result{UserID: info.UserID, Updated: true}, nil
}
