package lnurl

import (
	"github.com/shopspring/decimal"
)

// RoutingFeeRate is the share of a forwarded amount kept back to pay
// routing fees to the mint.
var RoutingFeeRate = decimal.RequireFromString("0.01")

// RoutingFee returns ceil(amountSats * RoutingFeeRate) in sats.
func RoutingFee(amountSats uint64) uint64 {
	fee := decimal.NewFromInt(int64(amountSats)).Mul(RoutingFeeRate).Ceil()
	return uint64(fee.IntPart())
}

// ForwardAmounts splits a received amount (msat) into the routing fee
// allowance (sats) and the amount forwarded to the mint (msat).
func ForwardAmounts(amountMsat uint64) (feeSats uint64, forwardMsat uint64) {
	feeSats = RoutingFee(amountMsat / 1000)
	feeMsat := feeSats * 1000
	if feeMsat >= amountMsat {
		return feeSats, 0
	}
	return feeSats, amountMsat - feeMsat
}
