package matrix

import (
	"maps"
	"regexp"
	"slices"
	"strings"
)

// JobConfig is one concrete cell of the matrix or one include entry.
type JobConfig struct {
	Name    string
	Index   int
	Axes    map[string]string
	Vars    map[string]string
	Env     map[string]string
	Image   string
	Include bool

	branches []branchPredicate
}

type branchPredicate struct {
	only   []*regexp.Regexp
	except []*regexp.Regexp
}

func (p branchPredicate) match(branch string) bool {
	for _, r := range p.except {
		if r.MatchString(branch) {
			return false
		}
	}

	if len(p.only) == 0 {
		return true
	}

	for _, r := range p.only {
		if r.MatchString(branch) {
			return true
		}
	}

	return false
}

// MatchBranch reports whether every branch restriction of the job accepts branch.
// An unknown (empty) branch matches everything.
func (j JobConfig) MatchBranch(branch string) bool {
	if branch == "" {
		return true
	}

	for _, p := range j.branches {
		if !p.match(branch) {
			return false
		}
	}

	return true
}

// AxisNames returns the bound axis names in sorted order.
func (j JobConfig) AxisNames() []string {
	return slices.Sorted(maps.Keys(j.Axes))
}

func (j JobConfig) String() string {
	var pairs []string
	for _, name := range j.AxisNames() {
		pairs = append(pairs, name+"="+j.Axes[name])
	}

	return j.Name + "(" + strings.Join(pairs, ",") + ")"
}

// DeepCopy returns a job config which shares no maps with j.
func (j JobConfig) DeepCopy() JobConfig {
	c := j
	c.Axes = maps.Clone(j.Axes)
	c.Vars = maps.Clone(j.Vars)
	c.Env = maps.Clone(j.Env)
	c.branches = slices.Clone(j.branches)
	return c
}
