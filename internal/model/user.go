// Package model はドメインモデルを定義する。
package model

import (
	"sort"
	"strings"
	"time"
)

// User はEventSub購読の対象となる登録済みユーザーを表す。
// ScopesはOAuthトークン検証で得た許可スコープの正規化済み文字列。
// ScopeVersionはスコープ変更のたびに増加する単調カウンタで、
// ReconciledVersionは再同期処理が処理済みのバージョンを示す。
// ScopeVersion > ReconciledVersion のユーザーが再同期の対象になる。
type User struct {
	UserID            string
	Scopes            string
	ScopeVersion      int64
	ReconciledVersion int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NeedsReconcile は未処理のスコープ変更が残っているかを返す。
func (u *User) NeedsReconcile() bool {
	return u.ScopeVersion > u.ReconciledVersion
}

// ScopeSet は許可スコープの集合を返す。
func (u *User) ScopeSet() ScopeSet {
	return ParseScopes(u.Scopes)
}

// ScopeSet は許可スコープ文字列の集合。
type ScopeSet map[string]struct{}

// Has は指定スコープが許可されているかを返す。
func (s ScopeSet) Has(scope string) bool {
	_, ok := s[scope]
	return ok
}

// ParseScopes はスペース区切りのスコープ文字列を集合に変換する。
func ParseScopes(scopes string) ScopeSet {
	set := make(ScopeSet)
	for _, s := range strings.Fields(scopes) {
		set[s] = struct{}{}
	}
	return set
}

// NormalizeScopes はスコープ一覧を順序非依存の正規形に変換する。
// ソートと重複除去を行い、スペース区切りで結合する。
// 同じスコープ集合は常に同じ文字列になるため、等値比較で変更検知できる。
func NormalizeScopes(scopes []string) string {
	set := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		set[s] = struct{}{}
	}

	sorted := make([]string, 0, len(set))
	for s := range set {
		sorted = append(sorted, s)
	}
	sort.Strings(sorted)

	return strings.Join(sorted, " ")
}
