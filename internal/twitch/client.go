// Package twitch はTwitch Helix EventSub APIとOAuthトークン検証の境界アダプタを提供する。
// 上流API固有の事情（409の扱い、エラーメッセージの形）はこのパッケージに閉じ込め、
// 呼び出し側には型付きの結果だけを公開する。
package twitch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sogebot/sogebot.dev/internal/topic"
)

const (
	defaultHelixURL    = "https://api.twitch.tv/helix"
	defaultTokenURL    = "https://id.twitch.tv/oauth2/token"
	defaultValidateURL = "https://id.twitch.tv/oauth2/validate"
)

// Config はTwitchクライアントの設定。
type Config struct {
	ClientID     string
	ClientSecret string

	// WebhookSecret はEventSub署名検証用のシークレット。購読作成時に送信する。
	WebhookSecret string
	// CallbackURL はEventSub通知の受信先URL（/callbackまで含む完全なURL）。
	CallbackURL string

	// テスト用にオーバーライド可能なURL
	HelixURL    string
	TokenURL    string
	ValidateURL string
}

// SubscribeOutcome は購読作成の型付き結果。
// 「既に購読済み」はエラーではなく成功の一種として扱う。
type SubscribeOutcome int

const (
	// SubscribeCreated は新しい購読が作成されたことを示す。
	SubscribeCreated SubscribeOutcome = iota
	// SubscribeAlreadyExists は同一条件の購読が既に存在したことを示す（冪等な成功）。
	SubscribeAlreadyExists
)

// APIError はTwitch APIからの非成功レスポンスを表す。
// ハンドラーはStatusCodeをそのままクライアントに露出できる。
type APIError struct {
	StatusCode int
	Message    string
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("twitch api error (status %d): %s", e.StatusCode, e.Message)
}

// TokenInfo はOAuthトークン検証エンドポイントのレスポンスを表す。
type TokenInfo struct {
	ClientID  string   `json:"client_id"`
	Login     string   `json:"login"`
	Scopes    []string `json:"scopes"`
	UserID    string   `json:"user_id"`
	ExpiresIn int64    `json:"expires_in"`
}

// Client はTwitch APIクライアント。
// アプリアクセストークンを内部でキャッシュし、並行呼び出しに対して安全。
type Client struct {
	config     Config
	httpClient *http.Client

	mu             sync.Mutex
	appToken       string
	appTokenExpiry time.Time
}

// NewClient はClientを生成する。
func NewClient(config Config) *Client {
	if config.HelixURL == "" {
		config.HelixURL = defaultHelixURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultTokenURL
	}
	if config.ValidateURL == "" {
		config.ValidateURL = defaultValidateURL
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// ValidateToken はユーザーのベアラークレデンシャルを検証エンドポイントに転送し、
// 認証済みユーザーIDと許可スコープを取得する。
// authorizationはクライアントから受け取ったAuthorizationヘッダーの値をそのまま渡す。
// 検証失敗時は*APIErrorを返し、プロバイダーのステータスをそのまま伝える。
func (c *Client) ValidateToken(ctx context.Context, authorization string) (*TokenInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.ValidateURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create validate request: %w", err)
	}
	req.Header.Set("Authorization", authorization)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("validate request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read validate response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var info TokenInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to parse validate response: %w", err)
	}
	if info.UserID == "" {
		return nil, fmt.Errorf("validate response has empty user_id")
	}

	return &info, nil
}

// subscribeRequest はEventSub購読作成リクエストのボディ。
type subscribeRequest struct {
	Type      string             `json:"type"`
	Version   string             `json:"version"`
	Condition map[string]string  `json:"condition"`
	Transport subscribeTransport `json:"transport"`
}

type subscribeTransport struct {
	Method   string `json:"method"`
	Callback string `json:"callback"`
	Secret   string `json:"secret"`
}

// helixError はHelixのエラーレスポンスボディ。
type helixError struct {
	Error   string `json:"error"`
	Status  int64  `json:"status"`
	Message string `json:"message"`
}

// EnsureSubscribed は(ユーザー, トピック)の購読を冪等に確立する。
// 同一条件の購読が既に存在する場合（409）はSubscribeAlreadyExistsを返し、
// エラーとしては扱わない。その他の失敗は*APIErrorまたは転送エラーを返す。
func (c *Client) EnsureSubscribed(ctx context.Context, t topic.Topic, userID string) (SubscribeOutcome, error) {
	token, err := c.appAccessToken(ctx)
	if err != nil {
		return SubscribeCreated, fmt.Errorf("failed to get app access token: %w", err)
	}

	reqBody := subscribeRequest{
		Type:      t.Type,
		Version:   t.Version,
		Condition: t.ConditionFor(userID),
		Transport: subscribeTransport{
			Method:   "webhook",
			Callback: c.config.CallbackURL,
			Secret:   c.config.WebhookSecret,
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return SubscribeCreated, fmt.Errorf("failed to marshal subscribe request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.HelixURL+"/eventsub/subscriptions", bytes.NewReader(jsonBody))
	if err != nil {
		return SubscribeCreated, fmt.Errorf("failed to create subscribe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Client-Id", c.config.ClientID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SubscribeCreated, fmt.Errorf("subscribe request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return SubscribeCreated, fmt.Errorf("failed to read subscribe response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted:
		return SubscribeCreated, nil
	case resp.StatusCode == http.StatusConflict:
		return SubscribeAlreadyExists, nil
	case strings.Contains(string(body), "subscription already exists"):
		// 一部のAPIバージョンは409以外でもこのメッセージを返す
		return SubscribeAlreadyExists, nil
	}

	var helixErr helixError
	if err := json.Unmarshal(body, &helixErr); err == nil && helixErr.Message != "" {
		return SubscribeCreated, &APIError{StatusCode: resp.StatusCode, Message: helixErr.Message}
	}
	return SubscribeCreated, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

// subscriptionList はEventSub購読一覧レスポンス。
type subscriptionList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
	Pagination struct {
		Cursor string `json:"cursor"`
	} `json:"pagination"`
}

// UnsubscribeAll は現在の全購読を削除する。
// プロセス起動時のクリーンスレート処理で使用し、
// 前回インスタンスの購読が残って二重配信になるのを防ぐ。
func (c *Client) UnsubscribeAll(ctx context.Context) error {
	token, err := c.appAccessToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to get app access token: %w", err)
	}

	cursor := ""
	for {
		list, err := c.listSubscriptions(ctx, token, cursor)
		if err != nil {
			return err
		}

		for _, sub := range list.Data {
			if err := c.deleteSubscription(ctx, token, sub.ID); err != nil {
				return err
			}
		}

		if list.Pagination.Cursor == "" {
			return nil
		}
		cursor = list.Pagination.Cursor
	}
}

// listSubscriptions は購読一覧を1ページ取得する。
func (c *Client) listSubscriptions(ctx context.Context, token, cursor string) (*subscriptionList, error) {
	endpoint := c.config.HelixURL + "/eventsub/subscriptions"
	if cursor != "" {
		endpoint += "?after=" + url.QueryEscape(cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create list request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Client-Id", c.config.ClientID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read list response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var list subscriptionList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("failed to parse list response: %w", err)
	}

	return &list, nil
}

// deleteSubscription は購読を1件削除する。404は既に消えているため成功扱い。
func (c *Client) deleteSubscription(ctx context.Context, token, id string) error {
	endpoint := c.config.HelixURL + "/eventsub/subscriptions?id=" + url.QueryEscape(id)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create delete request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Client-Id", c.config.ClientID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return nil
}

// tokenResponse はクライアントクレデンシャルグラントのレスポンス。
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// appAccessToken はアプリアクセストークンを返す。
// 有効なトークンをキャッシュし、失効60秒前から再取得する。
func (c *Client) appAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.appToken != "" && time.Now().Before(c.appTokenExpiry.Add(-60*time.Second)) {
		return c.appToken, nil
	}

	data := url.Values{
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
		"grant_type":    {"client_credentials"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenURL,
		strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response")
	}

	c.appToken = tokenResp.AccessToken
	c.appTokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)

	return c.appToken, nil
}
