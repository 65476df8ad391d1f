package kernel

import (
	"github.com/google/pprof/profile"

	"nucleus/sched"
)

// Profile exports every live thread's accumulated CPU time as a
// pprof-shaped profile, one sample per thread with user and system
// nanoseconds as separate values and the thread identity as labels.
// External tooling can then inspect where the CPU went with the same
// toolchain the build already carries for host-side profiling.
func (k *Kernel) Profile() *profile.Profile {
	prof := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "user", Unit: "nanoseconds"},
			{Type: "system", Unit: "nanoseconds"},
		},
		PeriodType: &profile.ValueType{Type: "timer", Unit: "nanoseconds"},
		Period:     int64(1e9 / sched.TimerFrequencyHz),
	}

	for _, th := range k.Sched.Threads() {
		kind := "kernel"
		if th.Kind == sched.UserThread {
			kind = "user"
		}
		th.Usage.Lock()
		user, sys := th.Usage.Userns, th.Usage.Sysns
		th.Usage.Unlock()
		prof.Sample = append(prof.Sample, &profile.Sample{
			Value: []int64{user, sys},
			NumLabel: map[string][]int64{
				"tid": {int64(th.ID)},
				"pid": {int64(th.Pid)},
			},
			Label: map[string][]string{
				"kind": {kind},
			},
		})
	}
	return prof
}
