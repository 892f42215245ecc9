package environment

import (
	"context"
	"maps"
)

// MapProvider serves values from a fixed map. It is used for values given
// on the command line and in tests.
type MapProvider struct {
	values map[string]string
}

// NewMapProvider copies values; later changes to the map are not seen.
func NewMapProvider(values map[string]string) *MapProvider {
	return &MapProvider{values: maps.Clone(values)}
}

func (p *MapProvider) Get(_ context.Context, name string) (string, bool) {
	val, found := p.values[name]
	return val, found
}
