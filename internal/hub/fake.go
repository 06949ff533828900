package hub

import "context"

// FakeRegistry is an in-memory Registry for tests, backed by plain maps that
// each test fills with the entities, states and registry records it needs.
type FakeRegistry struct {
	Entities map[string]EntityDescriptor
	States   map[string]State
	Devices  map[string]Device
	Areas    map[string]Area
	Floors   map[string]Floor
}

func NewFakeRegistry() *FakeRegistry {
	return &FakeRegistry{
		Entities: map[string]EntityDescriptor{},
		States:   map[string]State{},
		Devices:  map[string]Device{},
		Areas:    map[string]Area{},
		Floors:   map[string]Floor{},
	}
}

func (r *FakeRegistry) GetEntity(ctx context.Context, entityID string) (EntityDescriptor, bool, error) {
	e, ok := r.Entities[entityID]
	return e, ok, nil
}

func (r *FakeRegistry) GetState(ctx context.Context, entityID string) (State, bool, error) {
	s, ok := r.States[entityID]
	return s, ok, nil
}

func (r *FakeRegistry) GetDevice(ctx context.Context, deviceID string) (Device, bool) {
	d, ok := r.Devices[deviceID]
	return d, ok
}

func (r *FakeRegistry) GetArea(ctx context.Context, areaID string) (Area, bool) {
	a, ok := r.Areas[areaID]
	return a, ok
}

func (r *FakeRegistry) GetFloor(ctx context.Context, floorID string) (Floor, bool) {
	f, ok := r.Floors[floorID]
	return f, ok
}

func (r *FakeRegistry) ListAllowed(ctx context.Context, label string) ([]EntityDescriptor, error) {
	var out []EntityDescriptor
	for _, e := range r.Entities {
		for _, l := range e.Labels {
			if l == label {
				out = append(out, e)
				break
			}
		}
	}
	return out, nil
}

// FakeServiceCaller records every call made through it.
type FakeServiceCaller struct {
	CallFunc func(ctx context.Context, domain, action, entityID string, serviceData map[string]any) error
	Calls    []ServiceCallRecord
}

type ServiceCallRecord struct {
	Domain, Action, EntityID string
	ServiceData              map[string]any
}

func (f *FakeServiceCaller) Call(ctx context.Context, domain, action, entityID string, serviceData map[string]any) error {
	f.Calls = append(f.Calls, ServiceCallRecord{Domain: domain, Action: action, EntityID: entityID, ServiceData: serviceData})
	if f.CallFunc != nil {
		return f.CallFunc(ctx, domain, action, entityID, serviceData)
	}
	return nil
}

// FakeRecorder serves canned history/statistics.
type FakeRecorder struct {
	QueryFunc      func(ctx context.Context, q HistoryQuery) ([]HistoryEntry, error)
	StatisticsFunc func(ctx context.Context, q StatisticsQuery) ([]StatisticPoint, error)
}

func (f *FakeRecorder) Query(ctx context.Context, q HistoryQuery) ([]HistoryEntry, error) {
	if f.QueryFunc != nil {
		return f.QueryFunc(ctx, q)
	}
	return nil, nil
}

func (f *FakeRecorder) Statistics(ctx context.Context, q StatisticsQuery) ([]StatisticPoint, error) {
	if f.StatisticsFunc != nil {
		return f.StatisticsFunc(ctx, q)
	}
	return nil, nil
}

// FakeEventBus lets tests fire events synchronously into a single
// subscriber, matching the hub's one-consumer contract.
type FakeEventBus struct {
	sub func(StateChangeEvent)
}

func (f *FakeEventBus) Subscribe(fn func(StateChangeEvent)) Unsubscribe {
	f.sub = fn
	return func() { f.sub = nil }
}

func (f *FakeEventBus) Fire(ev StateChangeEvent) {
	if f.sub != nil {
		f.sub(ev)
	}
}

// FakeCameraAPI serves canned snapshots/sources.
type FakeCameraAPI struct {
	ResolveSourceFunc func(ctx context.Context, entityID string) (CameraSource, bool, error)
	FetchSnapshotFunc func(ctx context.Context, entityID string) ([]byte, string, error)
}

func (f *FakeCameraAPI) ResolveSource(ctx context.Context, entityID string) (CameraSource, bool, error) {
	if f.ResolveSourceFunc != nil {
		return f.ResolveSourceFunc(ctx, entityID)
	}
	return CameraSource{}, false, nil
}

func (f *FakeCameraAPI) FetchSnapshot(ctx context.Context, entityID string) ([]byte, string, error) {
	if f.FetchSnapshotFunc != nil {
		return f.FetchSnapshotFunc(ctx, entityID)
	}
	return nil, "", nil
}
