// Package records defines the binary payloads carried on the event bus.
//
// Payloads are fixed-layout, native-endian structures with no embedded schema
// tag: the topic a payload travels on tells the consumer which layout to use.
//
//	topic            payload
//	imu_1            IMU
//	gps              GPS
//	<camera name>    Camera
//	<laser name>     Laser
//	<device>_trigger DeviceStatus
//
// Every record implements encoding.BinaryMarshaler and
// encoding.BinaryUnmarshaler. Names are stored in a NUL-padded field of
// NameSize bytes and are truncated if longer.
//
// # Images
//
// Camera records carry an Image: an immutable pixel buffer whose start is
// aligned to ImageAlign bytes. Handles are duplicated with Retain, which bumps
// a shared reference count instead of copying pixels, and given back with
// Release.
package records
