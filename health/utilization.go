package health

import (
	"context"
	"fmt"
)

// UtilizationConfig configures a UtilizationChecker.
type UtilizationConfig struct {
	// Name is the checker name.
	Name string

	// Usage reports the used amount and the capacity. A capacity <= 0
	// means unbounded and is always healthy.
	Usage func() (used, capacity int)

	// WarningThreshold is the used/capacity ratio that reports degraded.
	// Default: 0.95
	WarningThreshold float64

	// CriticalThreshold is the ratio that reports unhealthy.
	// Default: 0 (never unhealthy)
	CriticalThreshold float64
}

// UtilizationChecker reports how full a bounded resource is, such as the
// response cache.
type UtilizationChecker struct {
	config UtilizationConfig
}

// NewUtilizationChecker creates a UtilizationChecker.
func NewUtilizationChecker(config UtilizationConfig) *UtilizationChecker {
	if config.WarningThreshold <= 0 || config.WarningThreshold > 1 {
		config.WarningThreshold = 0.95
	}
	if config.CriticalThreshold > 0 && config.CriticalThreshold < config.WarningThreshold {
		config.CriticalThreshold = config.WarningThreshold
	}
	return &UtilizationChecker{config: config}
}

// Name returns the checker name.
func (u *UtilizationChecker) Name() string {
	return u.config.Name
}

// Check compares current usage against the thresholds.
func (u *UtilizationChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context cancelled", err)
	}

	used, capacity := u.config.Usage()
	details := map[string]any{"used": used, "capacity": capacity}
	if capacity <= 0 {
		return Healthy("unbounded").WithDetails(details)
	}

	ratio := float64(used) / float64(capacity)
	details["usage_percent"] = ratio * 100
	msg := fmt.Sprintf("%d of %d used (%.1f%%)", used, capacity, ratio*100)

	switch {
	case u.config.CriticalThreshold > 0 && ratio >= u.config.CriticalThreshold:
		return Unhealthy(msg, ErrCheckFailed).WithDetails(details)
	case ratio >= u.config.WarningThreshold:
		return Degraded(msg).WithDetails(details)
	default:
		return Healthy(msg).WithDetails(details)
	}
}

var _ Checker = (*UtilizationChecker)(nil)
