package service

import (
	"context"
	"sync"

	"github.com/septivank/buoy-telemetry/internal/db"
	"github.com/septivank/buoy-telemetry/internal/mq"
	"github.com/septivank/buoy-telemetry/internal/repository"
)

type fakeStore struct {
	mu        sync.Mutex
	nextID    int64
	raws      []db.RawReading
	readings  []db.SensorReading
	history   map[int][]float64
	saveErr   error
	insertErr error
	historyFn func(buoyID int) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{history: map[int][]float64{}}
}

func (f *fakeStore) SaveIngested(_ context.Context, raw *db.RawReading, reading *db.SensorReading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.nextID++
	raw.ID = f.nextID
	f.raws = append(f.raws, *raw)
	if reading != nil {
		f.nextID++
		reading.ID = f.nextID
		reading.RawReadingID = &raw.ID
		f.readings = append(f.readings, *reading)
	}
	return nil
}

func (f *fakeStore) RecentTemperatures(_ context.Context, buoyID int, limit int) ([]float64, error) {
	if f.historyFn != nil {
		if err := f.historyFn(buoyID); err != nil {
			return nil, err
		}
	}
	h := f.history[buoyID]
	if len(h) > limit {
		h = h[:limit]
	}
	return h, nil
}

func (f *fakeStore) ListUnparsedRaw(_ context.Context, afterID int64, limit int) ([]db.RawReading, error) {
	linked := map[int64]bool{}
	for _, r := range f.readings {
		if r.RawReadingID != nil {
			linked[*r.RawReadingID] = true
		}
	}
	var out []db.RawReading
	for _, raw := range f.raws {
		if raw.ID <= afterID || raw.Kind != db.KindMessage || linked[raw.ID] {
			continue
		}
		out = append(out, raw)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) InsertSensorReading(_ context.Context, reading *db.SensorReading) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.nextID++
	reading.ID = f.nextID
	f.readings = append(f.readings, *reading)
	return nil
}

func (f *fakeStore) ListSensorReadings(_ context.Context, buoyID *int, limit int) ([]db.SensorReading, error) {
	var out []db.SensorReading
	for i := len(f.readings) - 1; i >= 0 && len(out) < limit; i-- {
		if buoyID == nil || f.readings[i].BuoyID == *buoyID {
			out = append(out, f.readings[i])
		}
	}
	return out, nil
}

func (f *fakeStore) ListLocatedReadings(_ context.Context, buoyID *int) ([]db.SensorReading, error) {
	var out []db.SensorReading
	for _, r := range f.readings {
		if r.HasLocation() && (buoyID == nil || r.BuoyID == *buoyID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListRawReadings(_ context.Context, kind string, limit int) ([]db.RawReading, error) {
	var out []db.RawReading
	for i := len(f.raws) - 1; i >= 0 && len(out) < limit; i-- {
		if f.raws[i].Kind == kind {
			out = append(out, f.raws[i])
		}
	}
	return out, nil
}

func (f *fakeStore) ListBuoys(context.Context) ([]db.BuoySummary, error) {
	return nil, nil
}

func (f *fakeStore) DeleteSensorReading(_ context.Context, id int64) error {
	for i, r := range f.readings {
		if r.ID == id {
			f.readings = append(f.readings[:i], f.readings[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeStore) DeleteRawReading(_ context.Context, id int64) error {
	for i, r := range f.raws {
		if r.ID == id {
			f.raws = append(f.raws[:i], f.raws[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeStore) DeleteByBuoy(_ context.Context, buoyID int) (int64, int64, error) {
	var readings, raws int64
	keptReadings := f.readings[:0]
	for _, r := range f.readings {
		if r.BuoyID == buoyID {
			readings++
			continue
		}
		keptReadings = append(keptReadings, r)
	}
	f.readings = keptReadings
	keptRaws := f.raws[:0]
	for _, r := range f.raws {
		if r.BuoyID == buoyID {
			raws++
			continue
		}
		keptRaws = append(keptRaws, r)
	}
	f.raws = keptRaws
	return readings, raws, nil
}

type fakePublisher struct {
	events []mq.ReadingEvent
	err    error
}

func (f *fakePublisher) PublishReadingEvent(_ context.Context, event mq.ReadingEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}
