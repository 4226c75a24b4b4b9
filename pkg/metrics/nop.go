package metrics

import "time"

// Nop discards everything. It is the default for components built without a recorder.
type Nop struct{}

func NewNop() Nop { return Nop{} }

func (Nop) RecordScan(string, string, time.Duration) {}
func (Nop) RecordRecords(string, string, int)        {}
func (Nop) RecordAlert(string, string)               {}
func (Nop) RecordError(string)                       {}
func (Nop) SetPressureScore(string, float64)         {}
func (Nop) SetQueueDepth(int)                        {}
