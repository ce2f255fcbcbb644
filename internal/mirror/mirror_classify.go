package mirror

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// FileMap maps a relative forward-slash path to its modification timestamp.
// Directories are never keys.
type FileMap map[string]Timestamp

// Keys returns the paths of m as a set.
func (m FileMap) Keys() mapset.Set[string] {
	keys := mapset.NewSetWithSize[string](len(m))
	for k := range m {
		keys.Add(k)
	}
	return keys
}

// Classification partitions the union of local and remote paths into five disjoint sets.
type Classification struct {
	LocalOnly  mapset.Set[string]
	RemoteOnly mapset.Set[string]
	LocalOlder mapset.Set[string]
	Same       mapset.Set[string]
	LocalNewer mapset.Set[string]
}

// Classify compares local against remote. It has no side effects.
func Classify(local, remote FileMap) *Classification {
	localKeys := local.Keys()
	remoteKeys := remote.Keys()

	c := &Classification{
		LocalOnly:  localKeys.Difference(remoteKeys),
		RemoteOnly: remoteKeys.Difference(localKeys),
		LocalOlder: mapset.NewSet[string](),
		Same:       mapset.NewSet[string](),
		LocalNewer: mapset.NewSet[string](),
	}

	for key := range localKeys.Intersect(remoteKeys).Iter() {
		switch l, r := local[key], remote[key]; {
		case l < r:
			c.LocalOlder.Add(key)
		case l == r:
			c.Same.Add(key)
		default:
			c.LocalNewer.Add(key)
		}
	}
	return c
}

// Uploads returns LocalNewer ∪ LocalOnly in transfer order.
func (c *Classification) Uploads() []string {
	return SortPaths(c.LocalNewer.Union(c.LocalOnly).ToSlice())
}

// Total returns the number of classified paths.
func (c *Classification) Total() int {
	return c.LocalOnly.Cardinality() + c.RemoteOnly.Cardinality() +
		c.LocalOlder.Cardinality() + c.Same.Cardinality() + c.LocalNewer.Cardinality()
}
