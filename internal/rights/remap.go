package rights

// Transition names a migration between two layouts.
type Transition struct {
	From Version
	To   Version
}

// Rule is a semantic consolidation or split applied on top of the
// key-based remap. Apply returns the bits to add to the target mask.
type Rule interface {
	Apply(mask Mask, from, to Catalog) Mask
	keys() (sources, targets []string)
}

// Merge grants Into when the old mask held any of Sources.
type Merge struct {
	Sources []string
	Into    string
}

// Apply implements Rule.
func (r Merge) Apply(mask Mask, from, to Catalog) Mask {
	var src Mask
	for _, key := range r.Sources {
		src |= from.Value(key)
	}
	if mask.HasAny(src) {
		return to.Value(r.Into)
	}
	return 0
}

func (r Merge) keys() ([]string, []string) { return r.Sources, []string{r.Into} }

// Split grants every key of Into when the old mask held Source.
type Split struct {
	Source string
	Into   []string
}

// Apply implements Rule.
func (r Split) Apply(mask Mask, from, to Catalog) Mask {
	if !mask.HasAny(from.Value(r.Source)) {
		return 0
	}
	var out Mask
	for _, key := range r.Into {
		out |= to.Value(key)
	}
	return out
}

func (r Split) keys() ([]string, []string) { return []string{r.Source}, r.Into }

var (
	splitZenpage = Split{Source: KeyZenpage, Into: []string{KeyZenpagePages, KeyZenpageNews, KeyFiles}}
	mergeZenpage = Merge{Sources: []string{KeyZenpagePages, KeyZenpageNews, KeyFiles}, Into: KeyZenpage}
	splitViewAll = Split{Source: KeyViewAll, Into: []string{
		KeyViewAlbums, KeyViewPages, KeyViewNews, KeyViewSearch, KeyViewGallery, KeyViewFullImage,
	}}
	mergeViewAll = Merge{Sources: []string{KeyViewAlbums, KeyViewPages, KeyViewNews}, Into: KeyViewAll}
)

// Rules lists the special cases per transition. Transitions not listed
// use the key-based remap alone.
var Rules = map[Transition][]Rule{
	{From: 1, To: 2}: {splitZenpage},
	{From: 1, To: 3}: {splitZenpage, splitViewAll},
	{From: 2, To: 3}: {splitViewAll},
	{From: 2, To: 1}: {mergeZenpage},
	{From: 3, To: 1}: {mergeZenpage, mergeViewAll},
	{From: 3, To: 2}: {mergeViewAll},
}

// Remap translates mask from one layout to another. Each visible key of
// the target layout is granted when the source layout defines the same key
// and mask holds its old bit; the transition rules are applied afterwards.
// Hidden bits such as NO_RIGHTS are not carried over.
func Remap(mask Mask, from, to Version) (Mask, error) {
	old, err := Definitions(from)
	if err != nil {
		return 0, err
	}
	cur, err := Definitions(to)
	if err != nil {
		return 0, err
	}
	var out Mask
	for key, def := range cur {
		if !def.Visible {
			continue
		}
		if prev, ok := old[key]; ok && mask.HasAny(prev.Value) {
			out |= def.Value
		}
	}
	for _, rule := range Rules[Transition{From: from, To: to}] {
		out |= rule.Apply(mask, old, cur)
	}
	return out, nil
}
