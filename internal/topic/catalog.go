// Package topic はEventSubトピックカタログとスコープによる適格性判定を提供する。
package topic

import "github.com/sogebot/sogebot.dev/internal/model"

// ConditionKind はEventSub購読条件の形を表す。
// トピックによって条件に必要な識別子が異なる。
type ConditionKind int

const (
	// ConditionBroadcaster は broadcaster_user_id のみを要求する。
	ConditionBroadcaster ConditionKind = iota
	// ConditionBroadcasterModerator は broadcaster_user_id と moderator_user_id を要求する。
	// このシステムではモデレーターIDを配信者ID自身に束縛する。
	ConditionBroadcasterModerator
	// ConditionToBroadcaster は to_broadcaster_user_id を要求する（レイド受け側）。
	ConditionToBroadcaster
	// ConditionFromBroadcaster は from_broadcaster_user_id を要求する（レイド送り側）。
	ConditionFromBroadcaster
	// ConditionUser は user_id を要求する。
	ConditionUser
)

// Topic はEventSubトピックカタログの1エントリを表す。
// Scopeが空文字列のトピックはスコープに関係なく常に購読対象となる。
type Topic struct {
	Type      string
	Version   string
	Scope     string
	Condition ConditionKind
}

// EligibleFor は指定スコープ集合の下でこのトピックが購読対象かを返す。
func (t Topic) EligibleFor(scopes model.ScopeSet) bool {
	if t.Scope == "" {
		return true
	}
	return scopes.Has(t.Scope)
}

// ConditionFor はこのトピックの購読条件マップを組み立てる。
// モデレーターIDが必要なトピックでは配信者ID自身を束縛する。
func (t Topic) ConditionFor(userID string) map[string]string {
	switch t.Condition {
	case ConditionBroadcasterModerator:
		return map[string]string{
			"broadcaster_user_id": userID,
			"moderator_user_id":   userID,
		}
	case ConditionToBroadcaster:
		return map[string]string{"to_broadcaster_user_id": userID}
	case ConditionFromBroadcaster:
		return map[string]string{"from_broadcaster_user_id": userID}
	case ConditionUser:
		return map[string]string{"user_id": userID}
	default:
		return map[string]string{"broadcaster_user_id": userID}
	}
}

// catalog は固定のトピックカタログ。
// 再同期パスはこの全カタログを走査し、トピックごとに適格性を判定する。
var catalog = []Topic{
	// スコープ不要（常に購読）
	{Type: "channel.raid", Version: "1", Condition: ConditionToBroadcaster},
	{Type: "channel.raid", Version: "1", Condition: ConditionFromBroadcaster},
	{Type: "channel.update", Version: "2", Condition: ConditionBroadcaster},

	{Type: "user.update", Version: "1", Scope: "user:read:email", Condition: ConditionUser},

	{Type: "channel.follow", Version: "2", Scope: "moderator:read:followers", Condition: ConditionBroadcasterModerator},

	{Type: "channel.channel_points_custom_reward_redemption.add", Version: "1", Scope: "channel:read:redemptions", Condition: ConditionBroadcaster},
	{Type: "channel.channel_points_custom_reward_redemption.update", Version: "1", Scope: "channel:read:redemptions", Condition: ConditionBroadcaster},
	{Type: "channel.channel_points_custom_reward.add", Version: "1", Scope: "channel:read:redemptions", Condition: ConditionBroadcaster},
	{Type: "channel.channel_points_custom_reward.update", Version: "1", Scope: "channel:read:redemptions", Condition: ConditionBroadcaster},
	{Type: "channel.channel_points_custom_reward.remove", Version: "1", Scope: "channel:read:redemptions", Condition: ConditionBroadcaster},

	{Type: "channel.cheer", Version: "1", Scope: "bits:read", Condition: ConditionBroadcaster},

	{Type: "channel.ban", Version: "1", Scope: "channel:moderate", Condition: ConditionBroadcaster},
	{Type: "channel.unban", Version: "1", Scope: "channel:moderate", Condition: ConditionBroadcaster},

	{Type: "channel.prediction.begin", Version: "1", Scope: "channel:read:predictions", Condition: ConditionBroadcaster},
	{Type: "channel.prediction.progress", Version: "1", Scope: "channel:read:predictions", Condition: ConditionBroadcaster},
	{Type: "channel.prediction.lock", Version: "1", Scope: "channel:read:predictions", Condition: ConditionBroadcaster},
	{Type: "channel.prediction.end", Version: "1", Scope: "channel:read:predictions", Condition: ConditionBroadcaster},

	{Type: "channel.poll.begin", Version: "1", Scope: "channel:read:polls", Condition: ConditionBroadcaster},
	{Type: "channel.poll.progress", Version: "1", Scope: "channel:read:polls", Condition: ConditionBroadcaster},
	{Type: "channel.poll.end", Version: "1", Scope: "channel:read:polls", Condition: ConditionBroadcaster},

	{Type: "channel.hype_train.begin", Version: "1", Scope: "channel:read:hype_train", Condition: ConditionBroadcaster},
	{Type: "channel.hype_train.progress", Version: "1", Scope: "channel:read:hype_train", Condition: ConditionBroadcaster},
	{Type: "channel.hype_train.end", Version: "1", Scope: "channel:read:hype_train", Condition: ConditionBroadcaster},

	{Type: "channel.charity_campaign.donate", Version: "1", Scope: "channel:read:charity", Condition: ConditionBroadcaster},
	{Type: "channel.charity_campaign.start", Version: "1", Scope: "channel:read:charity", Condition: ConditionBroadcaster},
	{Type: "channel.charity_campaign.progress", Version: "1", Scope: "channel:read:charity", Condition: ConditionBroadcaster},
	{Type: "channel.charity_campaign.stop", Version: "1", Scope: "channel:read:charity", Condition: ConditionBroadcaster},

	{Type: "channel.goal.begin", Version: "1", Scope: "channel:read:goals", Condition: ConditionBroadcaster},
	{Type: "channel.goal.progress", Version: "1", Scope: "channel:read:goals", Condition: ConditionBroadcaster},
	{Type: "channel.goal.end", Version: "1", Scope: "channel:read:goals", Condition: ConditionBroadcaster},

	{Type: "channel.moderator.add", Version: "1", Scope: "moderation:read", Condition: ConditionBroadcaster},
	{Type: "channel.moderator.remove", Version: "1", Scope: "moderation:read", Condition: ConditionBroadcaster},

	{Type: "channel.shield_mode.begin", Version: "1", Scope: "moderator:read:shield_mode", Condition: ConditionBroadcasterModerator},
	{Type: "channel.shield_mode.end", Version: "1", Scope: "moderator:read:shield_mode", Condition: ConditionBroadcasterModerator},

	{Type: "channel.ad_break.begin", Version: "1", Scope: "channel:read:ads", Condition: ConditionBroadcaster},

	{Type: "channel.shoutout.create", Version: "1", Scope: "moderator:read:shoutouts", Condition: ConditionBroadcasterModerator},
	{Type: "channel.shoutout.receive", Version: "1", Scope: "moderator:read:shoutouts", Condition: ConditionBroadcasterModerator},
}

// Catalog は固定トピックカタログを返す。返り値のsliceは変更してはならない。
func Catalog() []Topic {
	return catalog
}

// EligibleFor はスコープ集合の下で購読対象となるトピック一覧を返す。
func EligibleFor(scopes model.ScopeSet) []Topic {
	var eligible []Topic
	for _, t := range catalog {
		if t.EligibleFor(scopes) {
			eligible = append(eligible, t)
		}
	}
	return eligible
}
