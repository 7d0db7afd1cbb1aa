package model

// Shared defaults used by the engine and the CLI.
const (
	DefaultTopPathsLimit = 5

	DefaultErrorStormThreshold  = 5
	DefaultBurstThreshold       = 50
	DefaultBotMinMatches        = 3
	DefaultCrawlMinRecords      = 10
	DefaultCrawlMinPairs        = 5
	DefaultCrawlMaxStep         = 2
	DefaultNotFoundThreshold    = 10
	DefaultSensitiveMinMatches  = 3
	DefaultGeoResolveConcurrent = 4
)
