package deal

// Fee schedule in basis points of 10000, fixed for the protocol.
const (
	FeeDenominator = 10000
	// ReleaseFeeBps is the protocol fee retained on every milestone payout.
	ReleaseFeeBps = 50
	// ResolutionFeeBps is the arbiter fee on dispute payouts.
	ResolutionFeeBps = 500
)

// ReleaseFee returns the protocol fee for a milestone amount, floored.
func ReleaseFee(amount int64) int64 {
	return amount * ReleaseFeeBps / FeeDenominator
}

// ResolutionFee returns the arbiter fee on a payout amount, floored.
func ResolutionFee(amount int64) int64 {
	return amount * ResolutionFeeBps / FeeDenominator
}
