package dataset

// keyPlan is the working state of active-key resolution.
type keyPlan struct {
	active   []string
	selected []string
	excluded []string
	top      int
	settled  bool
}

// keyRule is one step of active-key resolution. A rule that settles the
// plan stops every later rule.
type keyRule struct {
	name  string
	apply func(*keyPlan)
}

// keyRules run in order. Explicit selection overrides everything; otherwise
// excluded keys are removed from the ranking before the top-K cut, so the
// chart shows Top keys whenever that many remain.
var keyRules = []keyRule{
	{name: "selection", apply: applySelection},
	{name: "exclusion", apply: applyExclusion},
	{name: "top", apply: applyTop},
}

// resolveKeys returns the active stack keys given keys ranked by magnitude.
func resolveKeys(ranked []string, selected, excluded []string, top int) []string {
	p := &keyPlan{
		active:   append([]string(nil), ranked...),
		selected: selected,
		excluded: excluded,
		top:      top,
	}
	for _, r := range keyRules {
		if p.settled {
			break
		}
		r.apply(p)
	}
	return p.active
}

// applySelection makes a non-nil selection authoritative, in the order
// given. Duplicates and empty keys are dropped.
func applySelection(p *keyPlan) {
	if p.selected == nil {
		return
	}
	seen := make(map[string]bool, len(p.selected))
	out := make([]string, 0, len(p.selected))
	for _, k := range p.selected {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	p.active = out
	p.settled = true
}

func applyExclusion(p *keyPlan) {
	if len(p.excluded) == 0 {
		return
	}
	drop := make(map[string]bool, len(p.excluded))
	for _, k := range p.excluded {
		drop[k] = true
	}
	out := p.active[:0]
	for _, k := range p.active {
		if !drop[k] {
			out = append(out, k)
		}
	}
	p.active = out
}

// applyTop keeps the first top keys. top <= 0 keeps all of them.
func applyTop(p *keyPlan) {
	if p.top > 0 && len(p.active) > p.top {
		p.active = p.active[:p.top]
	}
}
