// timers.go - Timer channels (4 per CPU)

/*
timers.go - hardware timers

Grounded on _examples/original_source/src/nds/timer.{h,cc} ("twice"):
each timer is a 16-bit up-counter with a 4-step prescaler (/1, /64,
/256, /1024) or, for timers 1-3, a cascade mode that increments once per
overflow of the previous channel instead of counting its own prescaled
cycles. Rather than step the counter every cycle, the reference (and
this port) computes the counter's current value lazily from the cycle
count elapsed since the timer was last loaded, and schedules a CPU event
for the cycle on which it will next overflow.
*/

package main

type timerChannel struct {
	counter    uint32 // running value scaled 16.10 fixed point to absorb prescaler fractions between updates
	reload     uint16
	ctrl       uint16
	lastUpdate timestamp
	shift      uint
	enabled    bool
	irqOnOverflow bool
	cascade    bool
}

var timerShiftForPrescaler = [4]uint{0, 6, 8, 10}

type TimerController struct {
	cpuID    int
	channels [4]timerChannel
	m        *Machine
}

func newTimerController(cpuID int, m *Machine) *TimerController {
	return &TimerController{cpuID: cpuID, m: m}
}

func (t *TimerController) Reset() {
	*t = TimerController{cpuID: t.cpuID, m: t.m}
}

// readCounter computes a timer's current 16-bit value from elapsed
// native cycles since it was last updated, without needing a per-cycle
// tick, mirroring read_timer_counter in the reference.
func (t *TimerController) readCounter(ch int) uint16 {
	c := &t.channels[ch]
	if !c.enabled || c.cascade {
		return uint16(c.counter >> 10)
	}
	now := t.m.cpu[t.cpuID].clock
	elapsed := now - c.lastUpdate
	ticks := elapsed << (10 - c.shift)
	if c.shift > 10 {
		ticks = elapsed >> (c.shift - 10)
	}
	value := c.counter + uint32(ticks)
	return uint16(value >> 10)
}

func (t *TimerController) writeReload(ch int, value uint16) {
	t.channels[ch].reload = value
}

func (t *TimerController) writeCtrl(ch int, value uint16) {
	c := &t.channels[ch]
	wasEnabled := c.enabled

	prescaler := value & 0x3
	c.shift = timerShiftForPrescaler[prescaler]
	c.cascade = ch != 0 && bitSet(uint32(value), 2)
	c.irqOnOverflow = bitSet(uint32(value), 6)
	c.enabled = bitSet(uint32(value), 7)
	c.ctrl = value

	if c.enabled && !wasEnabled {
		c.counter = uint32(c.reload) << 10
		c.lastUpdate = t.m.cpu[t.cpuID].clock
		if !c.cascade {
			t.scheduleOverflow(ch)
		}
	} else if !c.enabled {
		t.m.scheduler.cancelCPUEvent(t.cpuID, evTimer0Overflow+ch)
	}
}

// scheduleOverflow arms a CPU event for the cycle at which this timer's
// counter will next wrap past 0xFFFF.
func (t *TimerController) scheduleOverflow(ch int) {
	c := &t.channels[ch]
	remaining := (uint32(0x10000) << 10) - c.counter
	dt := timestamp(remaining >> (10 - c.shift))
	if c.shift > 10 {
		dt = timestamp(remaining << (c.shift - 10))
	}
	t.m.scheduleCPUEventAfter(t.cpuID, evTimer0Overflow+ch, dt, timerOverflowEvent, int64(ch))
}

func timerOverflowEvent(m *Machine, cpuID int, data int64) {
	ch := int(data)
	tc := m.timers[cpuID]
	c := &tc.channels[ch]
	c.counter = uint32(c.reload) << 10
	c.lastUpdate = m.cpu[cpuID].clock

	if c.irqOnOverflow {
		m.requestTimerIRQ(cpuID, ch)
	}

	if ch+1 < 4 && tc.channels[ch+1].enabled && tc.channels[ch+1].cascade {
		tc.channels[ch+1].counter += 1 << 10
		if tc.channels[ch+1].counter>>10 > 0xFFFF {
			tc.channels[ch+1].counter = uint32(tc.channels[ch+1].reload) << 10
			if tc.channels[ch+1].irqOnOverflow {
				m.requestTimerIRQ(cpuID, ch+1)
			}
		}
	}

	if !c.cascade {
		tc.scheduleOverflow(ch)
	}
}
