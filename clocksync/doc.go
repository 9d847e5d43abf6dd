// Package clocksync estimates the offset and path delay between the host
// clock and the trigger board's clock.
//
// The exchange has two phases. The host beacons a phase A frame every
// transmit tick. The board answers with a phase A frame carrying (t1, t2)
// and later a phase B frame carrying t3; the host stamps t4 on receipt and
// computes
//
//	delay  = ((t4 - t3) + (t2 - t1)) / 2
//	offset = ((t2 - t1) - (t4 - t3)) / 2
//
// The result is sent back to the board as a phase B reply. Each (t1, t2)
// pair is used for at most one computation: a repeated phase B frame with no
// new phase A in between is ignored.
//
// The engine never adjusts local timestamps. Consumers apply the offset.
package clocksync
