package trigger

import (
	"log/slog"
	"math"
	"sync"

	"github.com/cyn4676086/multi-camera-sync/records"
)

// NeverTriggered is the LastTimeUS of a device that has not fired yet.
const NeverTriggered uint64 = math.MaxUint64

// Status is the last known state of one device.
type Status struct {
	Triggered  bool
	LastTimeUS uint64
}

// Publisher is the part of the event bus the registry needs.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Registry holds the last trigger time of every device.
//
// State changes happen under the lock; device status events are published
// after it is released, so subscribers may call back into the registry.
type Registry struct {
	mu     sync.Mutex
	status [NumDevices]Status
	pub    Publisher
}

// NewRegistry returns a registry with every device untriggered. pub may be
// nil, in which case no events are emitted.
func NewRegistry(pub Publisher) *Registry {
	r := &Registry{pub: pub}
	for i := range r.status {
		r.status[i] = Status{Triggered: false, LastTimeUS: NeverTriggered}
	}
	return r
}

// SetLastStatus latches every device whose bit is set in mask to
// {true, timeUS}. Devices with a clear bit are left as they are; status
// never reverts to untriggered.
func (r *Registry) SetLastStatus(timeUS uint64, mask uint8) {
	if mask == 0 {
		return
	}

	var fired [NumDevices]Device
	n := 0

	r.mu.Lock()
	for i := 0; i < NumDevices; i++ {
		d := Device(i)
		if mask&d.Bit() == 0 {
			continue
		}
		r.status[i] = Status{Triggered: true, LastTimeUS: timeUS}
		fired[n] = d
		n++
	}
	r.mu.Unlock()

	if r.pub == nil {
		return
	}
	payload, _ := records.DeviceStatus{TimeUS: timeUS, Status: true}.MarshalBinary()
	for _, d := range fired[:n] {
		if err := r.pub.Publish(d.Topic(), payload); err != nil {
			slog.Debug("trigger: publish failed", "device", d, "error", err)
		}
	}
}

// GetLastStatus returns the stored status of d. Unknown devices report
// {false, NeverTriggered}.
func (r *Registry) GetLastStatus(d Device) (bool, uint64) {
	if d >= NumDevices {
		return false, NeverTriggered
	}
	r.mu.Lock()
	s := r.status[d]
	r.mu.Unlock()
	return s.Triggered, s.LastTimeUS
}

// Snapshot returns all statuses in bit order.
func (r *Registry) Snapshot() [NumDevices]Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}
