package trace

import "context"

// Ref points at a string, either inline or through the string table.
type Ref struct {
	ID       StringID
	Text     string
	Interned bool
}

func Inline(s string) Ref { return Ref{Text: s} }

func Interned(id StringID) Ref { return Ref{ID: id, Interned: true} }

type RawAnnotation struct {
	Start   Timestamp
	End     Timestamp
	Instant bool
	Thread  ThreadID
	Kind    AnnotationKind
	Domain  DomainID
	Text    Ref
}

type RawLaunch struct {
	Start       Timestamp
	End         Timestamp
	Thread      ThreadID
	Correlation CorrelationKey
	API         Ref
}

type RawKernel struct {
	Start       Timestamp
	End         Timestamp
	Device      DeviceID
	Stream      StreamID
	Correlation CorrelationKey
	ShortName   Ref
	FullName    Ref
}

// RawEvents groups the three record streams as read from a store.
type RawEvents struct {
	Annotations []RawAnnotation
	Launches    []RawLaunch
	Kernels     []RawKernel
}

// StringTable resolves interned strings.
type StringTable interface {
	Resolve(id StringID) (string, error)
}

// Strings is a map-backed StringTable.
type Strings map[StringID]string

func (s Strings) Resolve(id StringID) (string, error) {
	v, ok := s[id]
	if !ok {
		return "", &UnresolvedReferenceError{ID: id, Field: "lookup"}
	}
	return v, nil
}

// Query selects rows from a store. Device and Thread filters apply only when
// the matching Has flag is set.
type Query struct {
	Window    Window
	Device    DeviceID
	HasDevice bool
	Thread    ThreadID
	HasThread bool
}

func (q Query) WithDevice(d DeviceID) Query {
	q.Device, q.HasDevice = d, true
	return q
}

func (q Query) WithThread(t ThreadID) Query {
	q.Thread, q.HasThread = t, true
	return q
}

// DeviceInfo describes one GPU present in a trace.
type DeviceInfo struct {
	ID      DeviceID
	Name    string
	Streams []StreamID
	Kernels int
	PCIBus  string
	SMs     int
	Memory  uint64
}

// Meta summarizes a trace for device selection and initial viewport setup.
type Meta struct {
	Devices     []DeviceInfo
	Extent      Window
	Kernels     int
	Annotations int
	Launches    int
}

func (m Meta) Device(id DeviceID) (DeviceInfo, bool) {
	for _, d := range m.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return DeviceInfo{}, false
}

// Store is a read-only source of trace records.
type Store interface {
	StringTable
	Meta(ctx context.Context) (Meta, error)
	QueryAnnotations(ctx context.Context, q Query) ([]RawAnnotation, error)
	QueryLaunchCalls(ctx context.Context, q Query) ([]RawLaunch, error)
	QueryKernelExecs(ctx context.Context, q Query) ([]RawKernel, error)
	Close() error
}
