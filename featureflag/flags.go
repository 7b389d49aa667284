package featureflag

type Flag string

const (
	FlagDisablePrefetch     Flag = "DISABLE_PREFETCH"
	FlagDisableEviction     Flag = "DISABLE_EVICTION"
	FlagDisableQueryEnqueue Flag = "DISABLE_QUERY_ENQUEUE"
)

// Flags returns the known feature flags.
func Flags() []Flag {
	return []Flag{
		FlagDisablePrefetch,
		FlagDisableEviction,
		FlagDisableQueryEnqueue,
	}
}
