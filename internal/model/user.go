package model

// Profile stores per-user preferences used by the task engine.
type Profile struct {
	UserID      int64  `json:"user_id" bson:"user_id" yaml:"user_id"`
	DisplayName string `json:"display_name" bson:"display_name" yaml:"display_name"`
	Timezone    string `json:"timezone" bson:"timezone" yaml:"timezone"`
}

// ProfileUpdate carries the optional fields of a profile change.
type ProfileUpdate struct {
	DisplayName *string
	Timezone    *string
}
