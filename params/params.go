package params

import "time"

const (
	ServerBodyLimit    = 1048576 // 1 MiB
	ServerIdleTimeout  = 30 * time.Second
	ServerReadTimeout  = 10 * time.Second
	ServerWriteTimeout = 10 * time.Second

	ResetTokenKeyPrefix   = "pr:" // password reset tokens
	WebhookEventKeyPrefix = "we:" // processed webhook event ids

	NotifyChannelPrefix  = "notify:user:" // redis pub/sub channel per recipient
	NotifyChannelPattern = "notify:user:*"

	ActivationTokenExpiration = 72 * time.Hour
	ResetTokenExpiration      = 1 * time.Hour
	WebhookEventDedupTTL      = 24 * time.Hour
	WebhookTolerance          = 5 * time.Minute // max accepted webhook signature age

	StripeCallTimeout = 15 * time.Second

	AccessTokenExpiration  = 15 * time.Minute
	RefreshTokenExpiration = 7 * 24 * time.Hour

	SubmitRateLimit       = 10 // public submissions per address per window
	SubmitRateLimitWindow = 1 * time.Minute

	HealthCheckServerAddr = ":3001"
)
