package persist

import "sync"

type KV struct {
	Key   string
	Value []byte
}

// Batch collects staged writes for a backend until Commit. Re-putting a key
// replaces its value but keeps its original position.
type Batch struct {
	mu    sync.Mutex
	order []string
	vals  map[string][]byte
}

func (b *Batch) Put(key string, value []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.vals == nil {
		b.vals = make(map[string][]byte)
	}
	if _, ok := b.vals[key]; !ok {
		b.order = append(b.order, key)
	}
	b.vals[key] = append([]byte(nil), value...)
}

// Take returns the staged writes in put order and empties the batch.
func (b *Batch) Take() []KV {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]KV, 0, len(b.order))
	for _, k := range b.order {
		out = append(out, KV{Key: k, Value: b.vals[k]})
	}
	b.order, b.vals = nil, nil
	return out
}

func (b *Batch) Reset() {
	b.mu.Lock()
	b.order, b.vals = nil, nil
	b.mu.Unlock()
}

func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}
