package experiment

// MinSampleSize is the assignment count below which results are reported as
// provisional and PickWinner refuses to declare a winner.
const MinSampleSize = 50

// PickWinner applies the advisory winner policy to a computed aggregate. It
// returns false when the sample is too small or the conversion rates tie
// exactly. The comparison is a raw percentage-point one; this is descriptive
// statistics, not a significance test.
func PickWinner(results *ExperimentResults) (Variant, bool) {
	if results == nil || results.TotalAssignments <= MinSampleSize {
		return "", false
	}

	a, b := results.VariantA.ConversionRate, results.VariantB.ConversionRate
	switch {
	case a > b:
		return VariantA, true
	case b > a:
		return VariantB, true
	default:
		return "", false
	}
}
