package topic

import (
	"testing"

	"github.com/sogebot/sogebot.dev/internal/model"
)

// スコープ不要のトピックは空のスコープ集合でも購読対象になることを検証
func TestEligibleFor_AlwaysEligibleTopics(t *testing.T) {
	eligible := EligibleFor(model.ParseScopes(""))

	types := make(map[string]int)
	for _, topic := range eligible {
		types[topic.Type]++
	}

	if types["channel.raid"] != 2 {
		t.Errorf("channel.raid count = %d, want 2 (to/from)", types["channel.raid"])
	}
	if types["channel.update"] != 1 {
		t.Errorf("channel.update count = %d, want 1", types["channel.update"])
	}
	if len(eligible) != 3 {
		t.Errorf("eligible count = %d, want 3 for empty scope set", len(eligible))
	}
}

// bits:readのみのユーザーはcheerとスコープ不要トピックだけが対象になることを検証
func TestEligibleFor_BitsReadOnly(t *testing.T) {
	eligible := EligibleFor(model.ParseScopes("bits:read"))

	var hasCheer bool
	for _, topic := range eligible {
		switch topic.Type {
		case "channel.cheer":
			hasCheer = true
		case "channel.raid", "channel.update":
			// スコープ不要トピックは常に含まれる
		default:
			t.Errorf("unexpected eligible topic %q for bits:read", topic.Type)
		}
	}

	if !hasCheer {
		t.Error("channel.cheer should be eligible for bits:read")
	}
}

// channel:moderateはbanとunbanの両方を許可することを検証
func TestEligibleFor_ModerateScope(t *testing.T) {
	eligible := EligibleFor(model.ParseScopes("channel:moderate"))

	types := make(map[string]bool)
	for _, topic := range eligible {
		types[topic.Type] = true
	}

	if !types["channel.ban"] || !types["channel.unban"] {
		t.Error("channel:moderate should authorize both channel.ban and channel.unban")
	}
	if types["channel.cheer"] {
		t.Error("channel.cheer should not be eligible without bits:read")
	}
}

// 条件マップの組み立てを検証
func TestConditionFor(t *testing.T) {
	tests := []struct {
		name  string
		topic Topic
		want  map[string]string
	}{
		{
			name:  "配信者のみ",
			topic: Topic{Type: "channel.cheer", Condition: ConditionBroadcaster},
			want:  map[string]string{"broadcaster_user_id": "123"},
		},
		{
			name:  "モデレーターは配信者自身に束縛",
			topic: Topic{Type: "channel.follow", Condition: ConditionBroadcasterModerator},
			want: map[string]string{
				"broadcaster_user_id": "123",
				"moderator_user_id":   "123",
			},
		},
		{
			name:  "レイド受け側",
			topic: Topic{Type: "channel.raid", Condition: ConditionToBroadcaster},
			want:  map[string]string{"to_broadcaster_user_id": "123"},
		},
		{
			name:  "レイド送り側",
			topic: Topic{Type: "channel.raid", Condition: ConditionFromBroadcaster},
			want:  map[string]string{"from_broadcaster_user_id": "123"},
		},
		{
			name:  "ユーザーID",
			topic: Topic{Type: "user.update", Condition: ConditionUser},
			want:  map[string]string{"user_id": "123"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.topic.ConditionFor("123")
			if len(got) != len(tt.want) {
				t.Fatalf("condition size = %d, want %d", len(got), len(tt.want))
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("condition[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

// カタログの全エントリがtypeとversionを持つことを検証
func TestCatalog_EntriesComplete(t *testing.T) {
	for _, topic := range Catalog() {
		if topic.Type == "" {
			t.Error("catalog entry with empty type")
		}
		if topic.Version == "" {
			t.Errorf("catalog entry %q with empty version", topic.Type)
		}
	}
}

// followトピックはv2でモデレータースコープを要求することを検証
func TestCatalog_FollowV2(t *testing.T) {
	for _, topic := range Catalog() {
		if topic.Type != "channel.follow" {
			continue
		}
		if topic.Version != "2" {
			t.Errorf("channel.follow version = %q, want %q", topic.Version, "2")
		}
		if topic.Scope != "moderator:read:followers" {
			t.Errorf("channel.follow scope = %q, want %q", topic.Scope, "moderator:read:followers")
		}
		if topic.Condition != ConditionBroadcasterModerator {
			t.Error("channel.follow should require broadcaster+moderator condition")
		}
		return
	}
	t.Fatal("channel.follow not found in catalog")
}
