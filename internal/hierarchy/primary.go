package hierarchy

import "github.com/keilerkonzept/kernel-tree-tui/internal/trace"

// PrimaryThread returns the CPU thread that launched the most kernels on
// device. Ties go to the lowest thread id. It fails with an error matching
// trace.ErrNoActivityForDevice when no kernel ran on the device, or when none
// of them has a launch call.
func PrimaryThread(launches []trace.LaunchCall, kernels []trace.KernelExec, device trace.DeviceID) (trace.ThreadID, error) {
	onDevice := make(map[trace.CorrelationKey]struct{})
	for _, k := range kernels {
		if k.HasDevice && k.Device == device {
			onDevice[k.Correlation] = struct{}{}
		}
	}
	if len(onDevice) == 0 {
		return 0, &trace.NoActivityError{Device: device}
	}

	counts := make(map[trace.ThreadID]int)
	for _, l := range launches {
		if _, ok := onDevice[l.Correlation]; ok {
			counts[l.Thread]++
		}
	}

	var (
		best      trace.ThreadID
		bestCount int
	)
	for tid, n := range counts {
		if n > bestCount || (n == bestCount && tid < best) {
			best, bestCount = tid, n
		}
	}
	if bestCount == 0 {
		return 0, &trace.NoActivityError{Device: device}
	}
	return best, nil
}
