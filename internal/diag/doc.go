// Package diag defines diagnostic codes and containers shared by the
// translation passes.
//
// Codes are grouped by thousands: 1xxx stack discipline, 2xxx unresolved
// references, 3xxx arity, 4xxx dispatch shape, 5xxx batch driver. Every
// fatal translation failure is returned as *Error, which unwraps to the
// sentinel of its class so callers can write
//
//	if errors.Is(err, diag.ErrArity) { ... }
package diag
