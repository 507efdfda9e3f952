package playback

import (
	"context"
	"time"

	"github.com/dimarconicola/storiellai/types"
)

// StartVolumeSampler polls the volume potentiometer and feeds the
// normalized reading into SetVolume. Sensor faults keep the last good
// value; a knob that goes quiet must not mute a bedtime story.
func (c *Controller) StartVolumeSampler(ctx context.Context, hw types.Hardware) {
	go func() {
		interval := c.vol.SampleInterval
		if interval <= 0 {
			interval = 200 * time.Millisecond
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		faulted := false
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				v, err := hw.ReadAnalog(c.vol.Channel)
				if err != nil {
					if !faulted {
						c.logger.Warnw("Volume read failed, holding last value", "error", err)
						faulted = true
					}
					continue
				}
				faulted = false
				c.SetVolume(v)
			}
		}
	}()
}
