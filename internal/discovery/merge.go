package discovery

import "github.com/petward/server/internal/companion"

// Epsilon is the per-axis distance beyond which a live position supersedes
// the one read from disk.
const Epsilon = 0.1

// Merge folds the resident companions of owner into a disk result. A disk
// snapshot whose live counterpart moved more than Epsilon on any axis is
// replaced by a snapshot built from the live entity, keeping the disk
// independence fields. Live companions absent from disk are appended. Order:
// disk order first, then live-only in the order given.
func Merge(owner companion.Identity, disk []companion.Snapshot, live []companion.Companion, ind companion.Independence) []companion.Snapshot {
	out := make([]companion.Snapshot, len(disk), len(disk)+len(live))
	copy(out, disk)
	index := make(map[companion.Identity]int, len(out))
	for i, s := range out {
		index[s.ID] = i
	}

	for _, c := range live {
		if o, ok := c.Owner(); !ok || o != owner {
			continue
		}
		if i, ok := index[c.ID()]; ok {
			if c.Pos().Differs(out[i].Pos, Epsilon) {
				out[i] = companion.Supersede(out[i], c)
			}
			continue
		}
		index[c.ID()] = len(out)
		out = append(out, companion.FromLive(c, ind))
	}
	return out
}
