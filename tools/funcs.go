package tools

import "time"

// PCMDuration returns the playback duration of 16-bit PCM audio.
func PCMDuration(byteLen, rate, channels int) time.Duration {
	if rate <= 0 || channels <= 0 {
		return 0
	}
	samples := byteLen / 2 / channels
	return time.Duration(samples) * time.Second / time.Duration(rate)
}

// FrameSamples returns the number of samples across all channels contained
// in a frame of the given duration.
func FrameSamples(duration time.Duration, rate, channels int) int {
	return int(duration.Seconds() * float64(rate) * float64(channels))
}
