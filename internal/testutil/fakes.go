package testutil

import (
	"context"
	"sync"

	"github.com/livinlefevreloca/trmnlwatch/internal/db"
	"github.com/livinlefevreloca/trmnlwatch/internal/feed"
	"github.com/livinlefevreloca/trmnlwatch/internal/notify"
	"github.com/livinlefevreloca/trmnlwatch/internal/trmnl"
)

// FakeDevices serves a fixed device list or error
type FakeDevices struct {
	mu      sync.Mutex
	devices []trmnl.Device
	err     error
	calls   int
	lastKey string
}

func NewFakeDevices(devices ...trmnl.Device) *FakeDevices {
	return &FakeDevices{devices: devices}
}

func (f *FakeDevices) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *FakeDevices) ListDevices(_ context.Context, apiKey string) ([]trmnl.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastKey = apiKey
	if f.err != nil {
		return nil, f.err
	}
	out := make([]trmnl.Device, len(f.devices))
	copy(out, f.devices)
	return out, nil
}

func (f *FakeDevices) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *FakeDevices) LastKey() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastKey
}

// FakeFeeds serves per-kind item lists
type FakeFeeds struct {
	mu    sync.Mutex
	items map[feed.Kind][]feed.Item
	err   error
}

func NewFakeFeeds() *FakeFeeds {
	return &FakeFeeds{items: make(map[feed.Kind][]feed.Item)}
}

func (f *FakeFeeds) SetItems(kind feed.Kind, items ...feed.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[kind] = items
}

func (f *FakeFeeds) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *FakeFeeds) FetchFeed(_ context.Context, kind feed.Kind) ([]feed.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]feed.Item, len(f.items[kind]))
	copy(out, f.items[kind])
	return out, nil
}

// FakeStore is an in-memory reading and feed store
type FakeStore struct {
	mu          sync.Mutex
	readings    []db.BatteryReading
	feeds       map[feed.Kind]map[string]feed.Item
	upsertCalls int
	readErr     error
	writeErr    error
}

func NewFakeStore() *FakeStore {
	return &FakeStore{feeds: make(map[feed.Kind]map[string]feed.Item)}
}

func (s *FakeStore) SetReadError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

func (s *FakeStore) SetWriteError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

func (s *FakeStore) InsertBatteryReadings(_ context.Context, readings []db.BatteryReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.readings = append(s.readings, readings...)
	return nil
}

func (s *FakeStore) Readings() []db.BatteryReading {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]db.BatteryReading, len(s.readings))
	copy(out, s.readings)
	return out
}

func (s *FakeStore) GetFeedItems(_ context.Context, kind feed.Kind) ([]feed.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	out := make([]feed.Item, 0, len(s.feeds[kind]))
	for _, item := range s.feeds[kind] {
		out = append(out, item)
	}
	return out, nil
}

func (s *FakeStore) UpsertFeedItems(_ context.Context, kind feed.Kind, items []feed.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	if s.writeErr != nil {
		return s.writeErr
	}
	if s.feeds[kind] == nil {
		s.feeds[kind] = make(map[string]feed.Item)
	}
	for _, item := range items {
		s.feeds[kind][item.ID] = item
	}
	return nil
}

// Item returns a stored feed item by id
func (s *FakeStore) Item(kind feed.Kind, id string) (feed.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.feeds[kind][id]
	return item, ok
}

// MarkRead flips is_read the way a user action would
func (s *FakeStore) MarkRead(kind feed.Kind, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.feeds[kind][id]; ok {
		item.IsRead = true
		s.feeds[kind][id] = item
	}
}

func (s *FakeStore) FeedCount(kind feed.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.feeds[kind])
}

func (s *FakeStore) UpsertCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertCalls
}

// RecordingNotifier keeps every notification it is handed
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (r *RecordingNotifier) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *RecordingNotifier) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *RecordingNotifier) Sent() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Notification, len(r.sent))
	copy(out, r.sent)
	return out
}
