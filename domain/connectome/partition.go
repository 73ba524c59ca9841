package connectome

import (
	"fmt"
	"math/rand"
	"sort"
)

// LabelPair is an unordered pair of network labels in fixed enumeration
// order (A <= B within the canonical network ordering).
type LabelPair struct {
	A string
	B string
}

func (p LabelPair) String() string {
	return p.A + "-" + p.B
}

// NetworkPartition maps each parcel index to a network label. The network
// ordering (and therefore the pair enumeration) is fixed by sorting the
// unique labels, so it is identical for every permutation of the same base
// partition.
type NetworkPartition struct {
	labels   []string
	networks []string
	byLabel  map[string][]int
	pairs    []LabelPair
}

// NewNetworkPartition builds a partition from the per-parcel label array.
// The pair->parcel index table is precomputed once per instance so feature
// reduction inside the permutation hot loop never re-derives it.
func NewNetworkPartition(labels []string) (*NetworkPartition, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("partition requires at least one parcel label")
	}

	byLabel := make(map[string][]int)
	for i, l := range labels {
		byLabel[l] = append(byLabel[l], i)
	}

	networks := make([]string, 0, len(byLabel))
	for l := range byLabel {
		networks = append(networks, l)
	}
	sort.Strings(networks)

	pairs := make([]LabelPair, 0, len(networks)*(len(networks)+1)/2)
	for i := 0; i < len(networks); i++ {
		for j := i; j < len(networks); j++ {
			pairs = append(pairs, LabelPair{A: networks[i], B: networks[j]})
		}
	}

	owned := make([]string, len(labels))
	copy(owned, labels)

	return &NetworkPartition{
		labels:   owned,
		networks: networks,
		byLabel:  byLabel,
		pairs:    pairs,
	}, nil
}

// Parcels returns the parcel count.
func (np *NetworkPartition) Parcels() int {
	return len(np.labels)
}

// Labels returns a copy of the per-parcel label sequence.
func (np *NetworkPartition) Labels() []string {
	out := make([]string, len(np.labels))
	copy(out, np.labels)
	return out
}

// Networks returns the fixed canonical network ordering.
func (np *NetworkPartition) Networks() []string {
	out := make([]string, len(np.networks))
	copy(out, np.networks)
	return out
}

// ParcelsWithLabel returns the parcel indices assigned to a network label.
func (np *NetworkPartition) ParcelsWithLabel(label string) []int {
	idx := np.byLabel[label]
	out := make([]int, len(idx))
	copy(out, idx)
	return out
}

// Pairs returns the fixed enumeration of unordered network-label pairs,
// including same-label pairs. Length is C(K,2)+K for K networks.
func (np *NetworkPartition) Pairs() []LabelPair {
	out := make([]LabelPair, len(np.pairs))
	copy(out, np.pairs)
	return out
}

// PairBlocks returns the row/column parcel index sets for pair i. The
// returned slices alias the precomputed table and must not be mutated.
func (np *NetworkPartition) PairBlocks(i int) (rows, cols []int) {
	p := np.pairs[i]
	return np.byLabel[p.A], np.byLabel[p.B]
}

// LabelCounts returns the parcel count per network label.
func (np *NetworkPartition) LabelCounts() map[string]int {
	counts := make(map[string]int, len(np.byLabel))
	for l, idx := range np.byLabel {
		counts[l] = len(idx)
	}
	return counts
}

// Permuted returns a new partition with the parcel->label assignment
// uniformly shuffled (Fisher-Yates under the supplied generator). The label
// multiset, and therefore every per-network cardinality, is unchanged.
func (np *NetworkPartition) Permuted(rng *rand.Rand) *NetworkPartition {
	shuffled := make([]string, len(np.labels))
	copy(shuffled, np.labels)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	permuted, _ := NewNetworkPartition(shuffled)
	return permuted
}
