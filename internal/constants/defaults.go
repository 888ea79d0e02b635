package constants

import "time"

const (
	DefaultConnectTimeout       = 30 * time.Second
	DefaultReconnectInterval    = 5 * time.Second
	DefaultDisconnectQuiesce    = 250 // milliseconds
	DefaultThresholdRefresh     = 5 * time.Minute
	DefaultBroadcastAttempts    = 10
	DefaultBroadcastDelay       = 1 * time.Second
	DefaultBroadcastWriteWait   = 10 * time.Second
	DefaultStatusInterval       = 30 * time.Second
	DefaultWorkers              = 8
	DefaultQueueSize            = 256
	DefaultRedisChannelPrefix   = "moondesk:"
	DefaultLastReadingTTL       = 24 * time.Hour
	DefaultStorePoolConnections = 10
)
