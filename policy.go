package donsched

import (
	"fmt"
	"math"
)

// Bounds holds the inclusive range and default of base priorities (or
// ticket counts) accepted by a [Policy].
type Bounds struct {
	Min     int
	Max     int
	Default int
}

// Clamp returns v limited to [b.Min, b.Max].
func (b Bounds) Clamp(v int) int {
	return min(max(v, b.Min), b.Max)
}

// Policy selects how a [Scheduler] picks the next owner of a queue and how
// donated values combine.
type Policy struct {
	policy
	bounds Bounds
}

// ParsePolicy creates a new [Policy] from the given value. Unrecognised
// values yield the zero Policy, which is not valid.
func ParsePolicy(p any) Policy {
	switch v := p.(type) {
	case Policy:
		return v
	case string:
		return newPolicy(stringToPolicy(v))
	case fmt.Stringer:
		return newPolicy(stringToPolicy(v.String()))
	default:
		return Policy{}
	}
}

func newPolicy(p policy) Policy {
	return Policy{policy: p, bounds: defaultBounds[p]}
}

// Bounds returns the priority bounds carried by the policy.
func (p Policy) Bounds() Bounds {
	return p.bounds
}

// WithBounds returns a copy of the policy using b, normalised so that Min
// never exceeds Max and Default lies within them. Lottery policies never
// accept fewer than one ticket.
func (p Policy) WithBounds(b Bounds) Policy {
	if p.policy == policyLottery {
		b.Min = max(b.Min, 1)
	}
	b.Max = max(b.Max, b.Min)
	b.Default = b.Clamp(b.Default)
	p.bounds = b
	return p
}

func (p Policy) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

func (p *Policy) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	*p = ParsePolicy(s)
	if !p.IsValid() {
		return fmt.Errorf("unknown policy %q", s)
	}
	return nil
}

// Policies enumerates the available policies by name.
var Policies = policyContainer{
	MaxPriorityFifo: newPolicy(policyPriority),
	WeightedLottery: newPolicy(policyLottery),
}

// All returns all available policies.
func (c policyContainer) All() []Policy {
	return []Policy{c.MaxPriorityFifo, c.WeightedLottery}
}

type policy int

const (
	policyUnknown policy = iota
	policyPriority
	policyLottery
)

var (
	strPolicyMap = map[policy]string{
		policyUnknown:  "unknown",
		policyPriority: "priority",
		policyLottery:  "lottery",
	}

	typePolicyMap = map[string]policy{
		"unknown":  policyUnknown,
		"priority": policyPriority,
		"fifo":     policyPriority,
		"lottery":  policyLottery,
	}

	defaultBounds = map[policy]Bounds{
		policyPriority: {Min: 0, Max: 7, Default: 1},
		policyLottery:  {Min: 1, Max: math.MaxInt32, Default: 1},
	}
)

func (p policy) String() string {
	return strPolicyMap[p]
}

// IsValid reports whether p names a usable policy.
func (p policy) IsValid() bool {
	return p == policyPriority || p == policyLottery
}

// combine folds a donor's effective value into acc: maximum for strict
// priority, saturating sum for the lottery.
func (p policy) combine(acc, donated int) int {
	if p == policyLottery {
		if donated > math.MaxInt-acc {
			return math.MaxInt
		}
		return acc + donated
	}
	return max(acc, donated)
}

func stringToPolicy(s string) policy {
	if v, ok := typePolicyMap[s]; ok {
		return v
	}
	return policyUnknown
}

type policyContainer struct {
	MaxPriorityFifo Policy
	WeightedLottery Policy
}
