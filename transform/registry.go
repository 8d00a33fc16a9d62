package transform

import (
	"sort"
	"sync"

	"github.com/juju/errors"
)

var (
	mux      sync.RWMutex
	registry = map[string]Transformer{}
)

func init() {
	t, err := NewMappingTransformer(ContactV1)
	if err != nil {
		panic(err)
	}
	Register(t)
	Register(Passthrough{})
}

// Register makes t selectable by its name, replacing any previous one.
func Register(t Transformer) {
	mux.Lock()
	defer mux.Unlock()
	registry[t.Name()] = t
}

// Lookup returns the transformer registered under name.
func Lookup(name string) (Transformer, error) {
	mux.RLock()
	defer mux.RUnlock()
	t, ok := registry[name]
	if !ok {
		return nil, errors.NotFoundf("document mapping %q", name)
	}
	return t, nil
}

// Names lists the registered transformer names.
func Names() []string {
	mux.RLock()
	defer mux.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
