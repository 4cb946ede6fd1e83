package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/sogebot/sogebot.dev/internal/twitch"
)

// IngestServiceInterface はコールバックハンドラーが必要とする取り込みサービス。
type IngestServiceInterface interface {
	HandleNotification(ctx context.Context, body []byte) error
}

// CallbackHandler はEventSub Webhookコールバックのハンドラー。
type CallbackHandler struct {
	ingest IngestServiceInterface
	secret string
	logger *slog.Logger
}

// NewCallbackHandler はCallbackHandlerを生成する。
// secretは購読作成時にEventSubへ渡した署名シークレット。
func NewCallbackHandler(ingest IngestServiceInterface, secret string, logger *slog.Logger) *CallbackHandler {
	return &CallbackHandler{
		ingest: ingest,
		secret: secret,
		logger: logger,
	}
}

// verificationBody はコールバック検証リクエストのボディ。
type verificationBody struct {
	Challenge    string `json:"challenge"`
	Subscription struct {
		Type string `json:"type"`
	} `json:"subscription"`
}

// Handle はEventSubからの受信リクエストを処理する。
// POST /callback
//
// 全リクエストの署名を検証してから、メッセージタイプで分岐する。
//   - webhook_callback_verification: challengeをそのまま200で返す
//   - notification: キューに取り込み204
//   - revocation: 受理のみで204。購読の復元は次の再同期パスに任せる
func (h *CallbackHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	messageID := r.Header.Get(twitch.HeaderMessageID)
	timestamp := r.Header.Get(twitch.HeaderMessageTimestamp)
	signature := r.Header.Get(twitch.HeaderMessageSignature)

	if !twitch.VerifySignature(h.secret, messageID, timestamp, body, signature) {
		h.logger.Warn("callback signature mismatch",
			slog.String("message_id", messageID))
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	switch r.Header.Get(twitch.HeaderMessageType) {
	case twitch.MessageTypeVerification:
		var v verificationBody
		if err := json.Unmarshal(body, &v); err != nil || v.Challenge == "" {
			http.Error(w, "invalid verification body", http.StatusBadRequest)
			return
		}
		h.logger.Info("callback verified",
			slog.String("topic", v.Subscription.Type))
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(v.Challenge))

	case twitch.MessageTypeNotification:
		if err := h.ingest.HandleNotification(r.Context(), body); err != nil {
			h.logger.Error("failed to ingest notification", slog.Any("error", err))
			http.Error(w, "failed to ingest notification", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case twitch.MessageTypeRevocation:
		// 失効は次の再同期パスで自動的に再購読される
		h.logger.Warn("subscription revoked",
			slog.String("message_id", messageID))
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "unknown message type", http.StatusNotFound)
	}
}
