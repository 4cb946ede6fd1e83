// Package handler はHTTP APIのハンドラーとルーティングを実装する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sogebot/sogebot.dev/internal/model"
	"github.com/sogebot/sogebot.dev/internal/registration"
	"github.com/sogebot/sogebot.dev/internal/twitch"
)

// RegistrationServiceInterface はユーザーハンドラーが必要とする登録サービス。
type RegistrationServiceInterface interface {
	Register(ctx context.Context, authorization string) (*registration.Result, error)
}

// PollServiceInterface はユーザーハンドラーが必要とする配信サービス。
type PollServiceInterface interface {
	Poll(ctx context.Context, userID string) (*model.Event, error)
}

// UserHandler はユーザー登録とイベントポーリングのHTTPハンドラー。
type UserHandler struct {
	registration RegistrationServiceInterface
	poll         PollServiceInterface
	logger       *slog.Logger
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(registration RegistrationServiceInterface, poll PollServiceInterface, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		registration: registration,
		poll:         poll,
		logger:       logger,
	}
}

// Register はベアラートークンを検証してユーザーを登録する。
// POST /user
//
// ユーザーIDはトークン検証の結果から取得するため、リクエストボディは読まない。
// プロバイダー起因の失敗はそのステータスとメッセージをテキストで返す。
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	authorization := r.Header.Get("Authorization")
	if authorization == "" {
		http.Error(w, "Missing authorization header", http.StatusUnauthorized)
		return
	}

	result, err := h.registration.Register(r.Context(), authorization)
	if err != nil {
		var apiErr *twitch.APIError
		if errors.As(err, &apiErr) {
			http.Error(w, apiErr.Message, apiErr.StatusCode)
			return
		}
		h.logger.Error("registration failed", slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Debug("registration handled",
		slog.String("user_id", result.UserID),
		slog.Bool("created", result.Created),
		slog.Bool("updated", result.Updated))

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Success"))
}

// PollEvent は最古の未配信イベントを待ち受けて返す。
// GET /user?userId={id}
//
// イベントをクレームできた場合は200でペイロードを返す。待機期限まで
// イベントが現れなかった場合とクライアント切断は204相当として扱う。
// ポーリングサイクルの性質上、204は正常な応答でありエラーではない。
func (h *UserHandler) PollEvent(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "Missing userId", http.StatusBadRequest)
		return
	}

	event, err := h.poll.Poll(r.Context(), userID)
	if err != nil {
		h.logger.Error("poll failed",
			slog.String("user_id", userID),
			slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if event == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(event.Payload)
}

// respondJSON はJSONレスポンスを書き込む共通ヘルパー。
func respondJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
