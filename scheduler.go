// scheduler.go - Event-driven time base shared by both CPUs

/*
scheduler.go - cooperative event scheduler

Grounded on _examples/original_source/src/nds/scheduler.{h,cc} ("twice"):
a global doubled-nds9-cycle clock, a small fixed table of NDS-wide events,
and two per-CPU event tables (used for DMA starts and timer overflows).
The design notes in spec section 9 call for an explicit sorted-or-scanned
table rather than a coroutine runtime; with at most a handful of enabled
events at any time a linear scan is the idiomatic choice here, matching
the reference directly (it too scans a small fixed array rather than
maintaining a heap).

now and every event time live in "doubled nds9 cycles": the nds9 runs at
twice the nds7 rate, and rather than carry fractional nds7 cycles the
whole engine stores time doubled so comparisons stay integer.
*/

package main

// NDS-wide event slots (fire relative to the global nds9-doubled clock).
const (
	evHBlankStart = iota
	evHBlankEnd
	evCartAdvanceTransfer
	evAuxSPITransferComplete
	evSampleAudio
	numNDSEvents
)

// Per-CPU event slots.
const (
	evStartImmediateDMAs = iota
	evTimer0Overflow
	evTimer1Overflow
	evTimer2Overflow
	evTimer3Overflow
	evSPITransferComplete
	numCPUEvents
)

type ndsEventCallback func(m *Machine)
type cpuEventCallback func(m *Machine, cpuID int, data int64)

type ndsEvent struct {
	enabled bool
	time    timestamp
	cb      ndsEventCallback
}

type cpuEvent struct {
	enabled bool
	time    timestamp
	cb      cpuEventCallback
	data    int64
}

// Scheduler holds the global clock and every event table. It belongs to
// the Machine arena (spec section 9's "cyclic references" note: rather
// than give every component a pointer back to the Machine, components
// are handed the narrow capability they need — here, a *Scheduler).
type Scheduler struct {
	now timestamp

	events     [numNDSEvents]ndsEvent
	cpuEvents  [2][numCPUEvents]cpuEvent
}

func newScheduler() *Scheduler {
	return &Scheduler{}
}

// nextEventTime returns the earliest enabled event time, clamped to
// now+64 so that the CPU inner loop never runs unbounded (spec 4.3).
func (s *Scheduler) nextEventTime() timestamp {
	t := s.now + 64

	for i := range s.events {
		if s.events[i].enabled {
			t = minTime(t, s.events[i].time)
		}
	}
	// nds9 events (cpuEvents[0]) are already stored in doubled units, so
	// no shift is needed before comparing against the global clock.
	for i := range s.cpuEvents[0] {
		if s.cpuEvents[0][i].enabled {
			t = minTime(t, s.cpuEvents[0][i].time)
		}
	}
	for i := range s.cpuEvents[1] {
		if s.cpuEvents[1][i].enabled {
			// nds7 events are stored in nds7 cycles; double them to compare
			// against the doubled nds9 clock.
			t = minTime(t, s.cpuEvents[1][i].time<<1)
		}
	}
	return t
}

func (s *Scheduler) scheduleNDSEvent(event int, t timestamp, cb ndsEventCallback) {
	s.events[event].enabled = true
	s.events[event].time = t
	s.events[event].cb = cb
}

func (s *Scheduler) rescheduleNDSEventAfter(event int, dt timestamp, cb ndsEventCallback) {
	s.events[event].enabled = true
	s.events[event].time = s.now + dt
	s.events[event].cb = cb
}

// scheduleCPUEventAfter arms a per-CPU event dt cycles (in that CPU's own
// clock units) from now, and pulls the CPU's target cycle in if this event
// would otherwise be missed.
func (m *Machine) scheduleCPUEventAfter(cpuID int, event int, dt timestamp, cb cpuEventCallback, data int64) {
	s := m.scheduler
	cpuDt := dt
	if cpuID == 0 {
		cpuDt <<= 1
	}

	eventTime := m.cpu[cpuID].clock + cpuDt
	if eventTime < m.cpu[cpuID].targetClock {
		m.cpu[cpuID].targetClock = eventTime
	}

	s.cpuEvents[cpuID][event].enabled = true
	s.cpuEvents[cpuID][event].time = eventTime
	s.cpuEvents[cpuID][event].cb = cb
	s.cpuEvents[cpuID][event].data = data
}

func (s *Scheduler) cancelCPUEvent(cpuID, event int) {
	s.cpuEvents[cpuID][event].enabled = false
}

// runNDSEvents drains every NDS-wide event whose fire time has passed.
func (m *Machine) runNDSEvents() {
	s := m.scheduler
	for i := range s.events {
		ev := &s.events[i]
		if ev.enabled && s.now >= ev.time {
			ev.enabled = false
			if ev.cb != nil {
				ev.cb(m)
			}
		}
	}
}

// runCPUEvents drains every event belonging to one CPU.
func (m *Machine) runCPUEvents(cpuID int) {
	s := m.scheduler
	cpuTime := m.cpu[cpuID].clock
	for i := range s.cpuEvents[cpuID] {
		ev := &s.cpuEvents[cpuID][i]
		if ev.enabled && cpuTime >= ev.time {
			ev.enabled = false
			if ev.cb != nil {
				ev.cb(m, cpuID, ev.data)
			}
		}
	}
}
