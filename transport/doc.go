/*
Package transport carries line-delimited JSON frames between the host and
the trigger board over UDP or a serial port.

A Link owns exactly one Channel and runs two goroutines:

  - receive: reads with a bounded timeout, reassembles lines, decodes each
    with the wire package and dispatches it to one consumer by tag
  - transmit: sends a clock sync beacon every BeaconInterval

Dispatch:

	"a", "b"  clocksync.Engine
	"t"       trigger.Registry
	"imu"     records.IMU on topic "imu_1"
	"GNGGA"   records.GPS on topic "gps"
	"log"     slog, mapped by severity

Unknown or missing tags are ignored. Malformed frames are logged and
dropped. I/O errors are logged and counted, and the loop keeps going; there
is no automatic reconnection.

On the first Start of a UDP link the host sends one raw 8-byte native-endian
microsecond timestamp so the board learns where to send frames.

Start and Stop are idempotent. Stop returns once both goroutines have exited,
which takes at most one read timeout.
*/
package transport
