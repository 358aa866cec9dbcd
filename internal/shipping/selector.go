package shipping

import "sort"

// Select picks the cheapest rate with a positive price.
// Equal prices keep their input order. ok is false when nothing qualifies,
// which callers must treat as a quoting failure.
func Select(rates []Rate) (best Rate, ok bool) {
	valid := make([]Rate, 0, len(rates))
	for _, r := range rates {
		if r.Value().IsPositive() {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return Rate{}, false
	}
	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].Value().LessThan(valid[j].Value())
	})
	return valid[0], true
}
