package download

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirzenith/galleryvault/common"
	"github.com/sirzenith/galleryvault/galleryevent"
)

// speedTickInterval is how often the aggregate throughput is sampled and
// published (spec §4.5 "Speed meter").
const speedTickInterval = 500 * time.Millisecond

// addBytes is called from every in-flight countingReader; it only ever
// accumulates, the ticker below resets it after each sample.
func (o *Orchestrator) addBytes(n int64) {
	atomic.AddInt64(&o.bytesCounter, n)
}

// runSpeedMeter samples the byte counter every speedTickInterval and
// publishes a SpeedEvent carrying the instantaneous bytes/sec, formatted
// the way the teacher's progress bars render throughput.
func (o *Orchestrator) runSpeedMeter(ctx context.Context) {
	ticker := time.NewTicker(speedTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			delta := atomic.SwapInt64(&o.bytesCounter, 0)
			bytesPerSec := float64(delta) / speedTickInterval.Seconds()

			o.bus.PublishSpeed(galleryevent.SpeedEvent{
				BytesPerSec: bytesPerSec,
				Formatted:   common.FormatByteRate(bytesPerSec),
			})
		}
	}
}
