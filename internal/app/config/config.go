package config

type Config struct {
	RunAddress         string `env:"RUN_ADDRESS"`
	DatabaseURI        string `env:"DATABASE_URI"`
	ChargeRailAddress  string `env:"CHARGE_RAIL_ADDRESS"`
	ChargeRailSecret   string `env:"CHARGE_RAIL_SECRET"`
	PayoutRailAddress  string `env:"PAYOUT_RAIL_ADDRESS"`
	PayoutRailClientID string `env:"PAYOUT_RAIL_CLIENT_ID"`
	PayoutRailSecret   string `env:"PAYOUT_RAIL_SECRET"`
	WebhookSecret      string `env:"WEBHOOK_SECRET"`
	AdminToken         string `env:"ADMIN_TOKEN"`
	ClientTimeout      int    `env:"CLIENT_TIMEOUT"`
	// sweep cadence, seconds
	PollInterval   int `env:"POLL_INTERVAL"`
	MatureInterval int `env:"MATURE_INTERVAL"`
	// settlement policy, days
	WithdrawalCooldownDays int `env:"WITHDRAWAL_COOLDOWN_DAYS"`
	HoldingPeriodDays      int `env:"HOLDING_PERIOD_DAYS"`
}
