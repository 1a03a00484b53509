package plugin

import (
	"context"
)

// Poll reads every probe of set in order and assembles a batch.
// The first failing probe aborts the cycle and nothing read so far is returned.
func Poll(ctx context.Context, set *ProbeSet, prefix string, clock Clock, keys KeyGenerator) (Batch, error) {
	batch := make(Batch, 0, set.Len())
	if set == nil {
		return batch, nil
	}

	for _, b := range set.bindings {
		if err := ctx.Err(); err != nil {
			return nil, &PollError{Pin: b.Pin, Err: err}
		}

		temperature, err := b.Probe.ReadTemperature()
		if err != nil {
			return nil, &PollError{Pin: b.Pin, Err: err}
		}

		batch = append(batch, Reading{
			Asset:     AssetName(prefix, b.Pin),
			Timestamp: FormatTimestamp(clock.Now()),
			Key:       keys.Next(),
			Readings: map[string]float64{
				"temperature": temperature,
			},
		})
	}

	return batch, nil
}
