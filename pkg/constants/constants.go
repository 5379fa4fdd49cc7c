package constants

type contextKey string

const (
	LoggerKey    contextKey = "logger"
	TenantKey    contextKey = "tenant"
	RequestStart contextKey = "requestStart"
)
