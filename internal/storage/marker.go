package storage

import "context"

// StartupMarkerKey is the flag gating one-time startup delivery. With the file
// driver it maps to ./startup_sent.flag.
const StartupMarkerKey = "startup_sent"

// Marker binds one flag key of a Store.
type Marker struct {
	store Store
	key   string
}

func NewMarker(store Store, key string) *Marker {
	return &Marker{store: store, key: key}
}

func (m *Marker) IsSet(ctx context.Context) (bool, error) {
	return m.store.FlagSet(ctx, m.key)
}

func (m *Marker) Set(ctx context.Context) error {
	return m.store.SetFlag(ctx, m.key)
}
