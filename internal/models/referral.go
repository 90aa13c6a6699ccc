package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReferralStat is the per-referrer aggregate of attribution counters.
// Counters only ever grow; earnings grow by the reward unit per conversion.
type ReferralStat struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ReferrerID   primitive.ObjectID `json:"referrer_id" bson:"referrer_id"`
	ReferralCode string             `json:"referral_code" bson:"referral_code"`
	Clicks       int64              `json:"clicks" bson:"clicks"`
	Signups      int64              `json:"signups" bson:"signups"`
	Conversions  int64              `json:"conversions" bson:"conversions"`
	Earnings     float64            `json:"earnings" bson:"earnings"`
	CreatedAt    time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at" bson:"updated_at"`
}

// LeaderboardEntry is a stats record joined with its referrer's display name.
// ReferrerName is nil when the referrer cannot be resolved.
type LeaderboardEntry struct {
	ReferrerID   primitive.ObjectID `bson:"referrer_id"`
	ReferrerName *string            `bson:"referrer_name,omitempty"`
	Conversions  int64              `bson:"conversions"`
}

type LeaderboardRow struct {
	Rank        int    `json:"rank"`
	FullName    string `json:"full_name"`
	Conversions int64  `json:"conversions"`
	IsViewer    bool   `json:"is_viewer"`
}

type Leaderboard struct {
	Page       int               `json:"current_page"`
	TotalPages int               `json:"total_pages"`
	Rows       []*LeaderboardRow `json:"data"`
}
