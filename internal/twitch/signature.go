package twitch

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// EventSub通知で使用されるヘッダー名。
const (
	HeaderMessageID        = "Twitch-Eventsub-Message-Id"
	HeaderMessageType      = "Twitch-Eventsub-Message-Type"
	HeaderMessageTimestamp = "Twitch-Eventsub-Message-Timestamp"
	HeaderMessageSignature = "Twitch-Eventsub-Message-Signature"
)

// EventSubメッセージタイプ。
const (
	MessageTypeNotification = "notification"
	MessageTypeVerification = "webhook_callback_verification"
	MessageTypeRevocation   = "revocation"
)

// ComputeSignature はEventSub署名を計算する。
// HMAC-SHA256の入力は messageID + timestamp + body の連結。
func ComputeSignature(secret, messageID, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(messageID))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature は受信した署名ヘッダーを検証する。
// 比較には定数時間比較を使用する。
func VerifySignature(secret, messageID, timestamp string, body []byte, signature string) bool {
	expected := ComputeSignature(secret, messageID, timestamp, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
