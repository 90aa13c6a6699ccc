package config

import "time"

type SchedulerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	OTPSweepInterval time.Duration `yaml:"otp_sweep_interval"`
}

func loadSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		Enabled:          getEnvAsBool("SCHEDULER_ENABLED", true),
		OTPSweepInterval: getEnvAsDuration("OTP_SWEEP_INTERVAL", 5*time.Minute),
	}
}
