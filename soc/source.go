package soc

// SampleSource supplies voltage and current samples on demand.
// Implementations may block on hardware I/O and may fail transiently; the
// caller decides how to retry.
type SampleSource interface {
	Read() (Sample, error)
}
