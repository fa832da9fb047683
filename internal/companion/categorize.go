package companion

// Categorized buckets a discovery result. Each snapshot lands in exactly one
// bucket.
type Categorized struct {
	Standing    []Snapshot // following the owner
	Sitting     []Snapshot
	Roaming     []Snapshot
	Independent []Snapshot
}

func (c Categorized) Total() int {
	return len(c.Standing) + len(c.Sitting) + len(c.Roaming) + len(c.Independent)
}

// All returns every snapshot, bucket by bucket.
func (c Categorized) All() []Snapshot {
	out := make([]Snapshot, 0, c.Total())
	out = append(out, c.Standing...)
	out = append(out, c.Sitting...)
	out = append(out, c.Roaming...)
	return append(out, c.Independent...)
}

// Categorize assigns buckets in priority order:
// sitting > independent > roaming type > standing.
func Categorize(snaps []Snapshot, cat *Catalog) Categorized {
	if cat == nil {
		cat = defaultCatalog
	}
	var out Categorized
	for _, s := range snaps {
		switch {
		case s.Sitting:
			out.Sitting = append(out.Sitting, s)
		case s.Independent:
			out.Independent = append(out.Independent, s)
		case cat.IsRoaming(s.Type):
			out.Roaming = append(out.Roaming, s)
		default:
			out.Standing = append(out.Standing, s)
		}
	}
	return out
}
