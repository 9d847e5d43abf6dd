// Package trigger tracks when each hardware trigger input last fired.
//
// The board reports activations as a time plus an 8-bit mask, one bit per
// Device. Registry.SetLastStatus latches the devices whose bit is set and
// emits a records.DeviceStatus on "<device>_trigger" for each of them.
// Capture loops read the latched time with GetLastStatus to stamp frames.
package trigger
