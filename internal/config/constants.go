package config

import "time"

// Application constants
const (
	AppName    = "Tightening SPC"
	AppVersion = "1.0.0"

	// Lake tiers
	TierCore      = "core"
	TierRecurring = "recurring"

	DefaultLakeRoot       = "lake"
	DefaultStorePath      = "data/spc.db"
	DefaultBaselineMonths = 12
	DefaultMinPoints      = 200

	// Rate limiting
	DefaultRateLimit = 100 // requests per second
	DefaultBurstSize = 50

	WebSocketPingPeriod = 30 * time.Second
	WebSocketPongWait   = 60 * time.Second

	// Gold artifact versions recorded in build meta
	SPCBuildVersion        = "spc_v2_imr"
	CapabilityBuildVersion = "capability_v1"
)
