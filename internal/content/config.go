package content

import "time"

// Config holds the grading and completion rules of the content service.
type Config struct {
	// PassThreshold is the minimum score in percent to pass. Default: 70.
	PassThreshold float64 `mapstructure:"pass_threshold"`

	// CertificateThreshold is the final quiz score that earns a
	// certificate. Default: 80.
	CertificateThreshold float64 `mapstructure:"certificate_threshold"`

	// Maximum experience per attempt kind.
	UnitMaxXP   int `mapstructure:"unit_max_xp"`
	FinalMaxXP  int `mapstructure:"final_max_xp"`
	ReviewMaxXP int `mapstructure:"review_max_xp"`

	// ZAPs credited for passing a unit or final quiz.
	UnitReward  int `mapstructure:"unit_reward"`
	FinalReward int `mapstructure:"final_reward"`

	// ReviewSize caps the questions in a mistake review. Default: 10.
	ReviewSize int `mapstructure:"review_size"`

	// ReviewScanLimit bounds how much answer history review selection reads.
	ReviewScanLimit int `mapstructure:"review_scan_limit"`

	// StaleAfter is how long an in-progress attempt may sit untouched
	// before it is abandoned. Default: 72h.
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

// DefaultConfig returns the standard content rules.
func DefaultConfig() Config {
	return Config{
		PassThreshold:        70,
		CertificateThreshold: 80,
		UnitMaxXP:            50,
		FinalMaxXP:           100,
		ReviewMaxXP:          30,
		UnitReward:           10,
		FinalReward:          25,
		ReviewSize:           10,
		ReviewScanLimit:      500,
		StaleAfter:           72 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PassThreshold <= 0 {
		c.PassThreshold = d.PassThreshold
	}
	if c.CertificateThreshold <= 0 {
		c.CertificateThreshold = d.CertificateThreshold
	}
	if c.UnitMaxXP <= 0 {
		c.UnitMaxXP = d.UnitMaxXP
	}
	if c.FinalMaxXP <= 0 {
		c.FinalMaxXP = d.FinalMaxXP
	}
	if c.ReviewMaxXP <= 0 {
		c.ReviewMaxXP = d.ReviewMaxXP
	}
	if c.ReviewSize <= 0 {
		c.ReviewSize = d.ReviewSize
	}
	if c.ReviewScanLimit <= 0 {
		c.ReviewScanLimit = d.ReviewScanLimit
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = d.StaleAfter
	}
	return c
}
