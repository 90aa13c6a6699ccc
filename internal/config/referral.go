package config

type ReferralConfig struct {
	RewardUnit      float64 `yaml:"reward_unit"`
	CodeMaxAttempts int     `yaml:"code_max_attempts"`
	MaxPageSize     int     `yaml:"max_page_size"`
}

func loadReferralConfig() *ReferralConfig {
	return &ReferralConfig{
		RewardUnit:      getEnvAsFloat64("REFERRAL_REWARD_UNIT", 10),
		CodeMaxAttempts: getEnvAsInt("REFERRAL_CODE_MAX_ATTEMPTS", 10),
		MaxPageSize:     getEnvAsInt("LEADERBOARD_MAX_PAGE_SIZE", 100),
	}
}
