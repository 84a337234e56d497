package economy

import "time"

// Config holds the tunable economy constants.
type Config struct {
	// MaxHearts caps the heart balance. Default: 5.
	MaxHearts int `mapstructure:"max_hearts"`

	// HeartInterval is the time it takes to regenerate one heart. Default: 4h.
	HeartInterval time.Duration `mapstructure:"heart_interval"`

	// HeartPrice is the ZAP cost of one purchased heart. Default: 50.
	HeartPrice int `mapstructure:"heart_price"`

	// StartingHearts and StartingZaps seed new users.
	StartingHearts int `mapstructure:"starting_hearts"`
	StartingZaps   int `mapstructure:"starting_zaps"`

	// AdReward is the ZAP credit for one watched ad. Default: 10.
	AdReward int `mapstructure:"ad_reward"`

	// AdDailyLimit caps ad rewards per UTC day. 0 disables the cap.
	AdDailyLimit int `mapstructure:"ad_daily_limit"`
}

// DefaultConfig returns a Config with the standard economy values.
func DefaultConfig() Config {
	return Config{
		MaxHearts:      5,
		HeartInterval:  4 * time.Hour,
		HeartPrice:     50,
		StartingHearts: 5,
		StartingZaps:   0,
		AdReward:       10,
		AdDailyLimit:   5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxHearts <= 0 {
		c.MaxHearts = d.MaxHearts
	}
	if c.HeartInterval <= 0 {
		c.HeartInterval = d.HeartInterval
	}
	if c.HeartPrice <= 0 {
		c.HeartPrice = d.HeartPrice
	}
	if c.StartingHearts < 0 || c.StartingHearts > c.MaxHearts {
		c.StartingHearts = c.MaxHearts
	}
	if c.StartingZaps < 0 {
		c.StartingZaps = 0
	}
	if c.AdReward <= 0 {
		c.AdReward = d.AdReward
	}
	return c
}
