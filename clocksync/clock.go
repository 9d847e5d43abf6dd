package clocksync

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/procfs"
)

// Clock returns the current time in microseconds.
type Clock func() uint64

// WallMicros is the default Clock: microseconds since the Unix epoch. The
// board exchanges wall-clock timestamps in both phases.
func WallMicros() uint64 {
	return uint64(time.Now().UnixMicro())
}

var (
	bootOnce sync.Once
	bootTime time.Time
)

// MonotonicMicros returns microseconds since system boot. The boot time is
// read once from /proc/stat; where that is unavailable the process start is
// used as the epoch instead. Elapsed time is measured on Go's monotonic clock.
func MonotonicMicros() uint64 {
	bootOnce.Do(func() {
		bootTime = time.Now()
		bt, err := systemBootTime()
		if err != nil {
			slog.Debug("clocksync: boot time unavailable, counting from process start", "error", err)
			return
		}
		// keep the monotonic reading of time.Now and shift it back to boot
		bootTime = bootTime.Add(-time.Since(bt))
	})
	return uint64(time.Since(bootTime).Microseconds())
}

func systemBootTime() (time.Time, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return time.Time{}, err
	}
	st, err := fs.Stat()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(st.BootTime), 0), nil
}
