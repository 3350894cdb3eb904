package persona

// Store exposes persona retrieval.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Persona
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
// Later entries override earlier ones with the same ID, so file personas can
// shadow the built-in seeds.
func NewMemoryStore(items ...[]Persona) *MemoryStore {
	store := &MemoryStore{}
	for _, group := range items {
		for _, item := range group {
			store.put(item)
		}
	}
	return store
}

func (s *MemoryStore) put(p Persona) {
	for i, item := range s.items {
		if item.ID == p.ID {
			s.items[i] = p
			return
		}
	}
	s.items = append(s.items, p)
}

// List returns the persona list.
func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// FindByID looks up a persona by identifier.
func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Persona{}, false
}
