package types

// ContainerStats is the aggregate stats record. Each resource handler fills
// the subsection it owns via Stats(type) (spec.md §4.G).
type ContainerStats struct {
	CPU        *CPUStats
	Memory     *MemoryStats
	IO         *IOStats
	Monitoring *MonitoringStats
}

type CPUStats struct {
	UsageUS uint64
	Shares  uint64
}

type MemoryStats struct {
	UsageBytes      uint64
	LimitBytes      uint64
	MaxUsageBytes   uint64 // only populated for StatsFull
	FailCount       uint64 // only populated for StatsFull
}

type IOStats struct {
	ServicedBytes map[string]uint64
}

type MonitoringStats struct {
	// PerfEvents maps perf counter name to its current value; populated
	// only for StatsFull.
	PerfEvents map[string]uint64
}

// Event is the data carried to a notification callback (spec.md §4.E).
type Event struct {
	// Name identifies the registration.
	Name string
	// CounterValue is the 64-bit eventfd counter read on delivery, held as
	// a number.
	CounterValue uint64
	// Termination is non-empty ("exit" or "error") when this delivery is a
	// teardown notification rather than a live event (spec.md §4.E steps
	// 2-3).
	Termination string
}
