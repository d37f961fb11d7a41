package carrier

const (
	PeriodDaily      = "P1D"
	PeriodWeekly     = "P1W"
	PeriodMonthly    = "P1M"
	PeriodHalfYearly = "P6M"
	PeriodYearly     = "P1Y"
)

// SubscriptionPeriod returns the gateway period code for a billing cycle
// length in days. Unrecognized cycle lengths fall back to daily.
func SubscriptionPeriod(billingCycleDays int) string {
	switch billingCycleDays {
	case 1:
		return PeriodDaily
	case 7:
		return PeriodWeekly
	case 30:
		return PeriodMonthly
	case 180:
		return PeriodHalfYearly
	case 365:
		return PeriodYearly
	default:
		return PeriodDaily
	}
}
