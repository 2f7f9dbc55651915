package taskstore

import "sync"

// Store is an in-memory mapping from (channel, ts) to task metadata. Records
// live for the lifetime of the process; enumeration follows insertion order.
type Store struct {
	mu    sync.RWMutex
	items map[Key]Metadata
	order []Key
}

func New() *Store {
	return &Store{
		items: make(map[Key]Metadata),
	}
}

// Save upserts metadata under channel:ts. An existing record is overwritten
// silently; callers doing a read-modify-write must have read the prior value.
func (s *Store) Save(channel, ts string, md Metadata) {
	if s == nil {
		return
	}
	key := Key{Channel: channel, TS: ts}
	s.mu.Lock()
	if _, ok := s.items[key]; !ok {
		s.order = append(s.order, key)
	}
	s.items[key] = md
	s.mu.Unlock()
}

// Get returns the record for channel:ts, with ok=false on a miss.
func (s *Store) Get(channel, ts string) (Metadata, bool) {
	if s == nil {
		return Metadata{}, false
	}
	s.mu.RLock()
	md, ok := s.items[Key{Channel: channel, TS: ts}]
	s.mu.RUnlock()
	return md, ok
}

// Delete removes the record for channel:ts. Deleting an absent key is a no-op.
func (s *Store) Delete(channel, ts string) {
	if s == nil {
		return
	}
	key := Key{Channel: channel, TS: ts}
	s.mu.Lock()
	if _, ok := s.items[key]; ok {
		delete(s.items, key)
		for i, k := range s.order {
			if k == key {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()
}

// Len reports the number of stored records.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Range calls fn for every record in insertion order until fn returns false.
// It iterates over a snapshot, so fn may call back into the store.
func (s *Store) Range(fn func(key Key, md Metadata) bool) {
	if s == nil || fn == nil {
		return
	}
	s.mu.RLock()
	keys := append([]Key(nil), s.order...)
	items := make(map[Key]Metadata, len(s.items))
	for k, v := range s.items {
		items[k] = v
	}
	s.mu.RUnlock()

	for _, k := range keys {
		if !fn(k, items[k]) {
			return
		}
	}
}
