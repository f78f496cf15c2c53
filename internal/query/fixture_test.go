package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/keilerkonzept/kernel-tree-tui/internal/trace"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const primary trace.ThreadID = 7

func us(n int64) trace.Timestamp { return trace.Timestamp(n * 1000) }

// fixtureStore holds:
//
//	A [0,100] { B [10,40] <- gemm#1, C [50,90] <- flash_fwd }
//	D [200,300] <- nccl_allreduce, gemm#4
//	lonely (key 99, no launch)
//
// gemm and flash_fwd run on stream 7, the others on stream 9.
func fixtureStore() *trace.MemStore {
	a := func(text string, start, end int64) trace.RawAnnotation {
		return trace.RawAnnotation{Start: trace.Timestamp(start), End: trace.Timestamp(end), Thread: primary, Text: trace.Inline(text)}
	}
	l := func(key trace.CorrelationKey, start, end int64) trace.RawLaunch {
		return trace.RawLaunch{Start: trace.Timestamp(start), End: trace.Timestamp(end), Thread: primary, Correlation: key, API: trace.Interned(1)}
	}
	k := func(name string, key trace.CorrelationKey, stream trace.StreamID, start, end int64) trace.RawKernel {
		return trace.RawKernel{
			Start: us(start), End: us(end), Device: 0, Stream: stream, Correlation: key,
			ShortName: trace.Inline(name), FullName: trace.Inline("void " + name + "<float>()"),
		}
	}
	return &trace.MemStore{
		Strings: trace.Strings{1: "cudaLaunchKernel"},
		Raw: trace.RawEvents{
			Annotations: []trace.RawAnnotation{
				a("A", 0, 100),
				a("B", 10, 40),
				a("C", 50, 90),
				a("D", 200, 300),
			},
			Launches: []trace.RawLaunch{
				l(1, 15, 20),
				l(2, 60, 62),
				l(3, 210, 215),
				l(4, 220, 221),
			},
			Kernels: []trace.RawKernel{
				k("gemm", 1, 7, 1000, 1010),
				k("flash_fwd", 2, 7, 1020, 1100),
				k("nccl_allreduce", 3, 9, 1050, 1060),
				k("gemm", 4, 7, 1200, 1205),
				k("lonely", 99, 9, 1300, 1400),
			},
		},
	}
}

var fixtureWindow = trace.Window{Start: 0, End: us(2000)}

func loadFixture(t *testing.T) *Result {
	t.Helper()
	res, err := NewLoader(fixtureStore()).Load(context.Background(), Request{Device: 0, Window: fixtureWindow})
	require.NoError(t, err)
	require.False(t, res.Empty)
	return res
}
