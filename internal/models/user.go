package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type User struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Email        string             `json:"email" bson:"email"`
	ReferralCode string             `json:"referral_code" bson:"referral_code"`
	ReferredBy   string             `json:"referred_by,omitempty" bson:"referred_by,omitempty"`
	FullName     *string            `json:"full_name" bson:"full_name,omitempty"`
	State        *string            `json:"state" bson:"state,omitempty"`
	Country      *string            `json:"country" bson:"country,omitempty"`
	HasOnboarded bool               `json:"has_onboarded" bson:"has_onboarded"`
	CreatedAt    time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at" bson:"updated_at"`
}

// Profile holds the fields written once by onboarding.
type Profile struct {
	FullName string `json:"full_name" bson:"full_name"`
	State    string `json:"state" bson:"state"`
	Country  string `json:"country" bson:"country"`
}

