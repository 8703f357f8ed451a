package session

import "context"

// mockStore implements the consumer interface for tests.
type mockStore struct {
	getMultiFn func(ctx context.Context, keys []string) (map[string][]byte, error)
	setMultiFn func(ctx context.Context, entries map[string][]byte) error

	setCalls [][]string // keys of each SetMulti call, for write accounting
}

func (m *mockStore) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	if m.getMultiFn != nil {
		return m.getMultiFn(ctx, keys)
	}
	return map[string][]byte{}, nil
}

func (m *mockStore) SetMulti(ctx context.Context, entries map[string][]byte) error {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	m.setCalls = append(m.setCalls, keys)
	if m.setMultiFn != nil {
		return m.setMultiFn(ctx, entries)
	}
	return nil
}

// memStore is an in-memory KV fake for round-trip tests.
type memStore struct {
	data     map[string][]byte
	setCalls int
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}}
}

func (m *memStore) GetMulti(_ context.Context, keys []string) (map[string][]byte, error) {
	out := map[string][]byte{}
	for _, k := range keys {
		if v, ok := m.data[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m *memStore) SetMulti(_ context.Context, entries map[string][]byte) error {
	m.setCalls++
	for k, v := range entries {
		m.data[k] = v
	}
	return nil
}
