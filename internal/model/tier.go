package model

import "strings"

// Tier is a membership level gating which ticket types a user may claim.
// The set of tiers is closed; values outside the registry are rejected at
// parse time rather than carried around as free-form strings.
type Tier string

const (
    TierBasic Tier = "BASIC" // entry-level subscription
    TierPlus  Tier = "PLUS"  // mid-level subscription
    TierVIP   Tier = "VIP"   // top-level subscription
)

// tierRegistry is the fixed set of valid tiers.  Eligibility checks and
// criteria parsing both consult this registry.
var tierRegistry = map[Tier]bool{
    TierBasic: true,
    TierPlus:  true,
    TierVIP:   true,
}

// ParseTier normalizes a raw string into a Tier.  It returns false when
// the value is not part of the registry.
func ParseTier(raw string) (Tier, bool) {
    t := Tier(strings.ToUpper(strings.TrimSpace(raw)))
    if !tierRegistry[t] {
        return "", false
    }
    return t, true
}

// TierCriteria is the set of tiers eligible to claim a ticket type.  It is
// persisted as a comma-separated list in ticket_types.tier_criteria.
type TierCriteria []Tier

// ParseTierCriteria parses a comma-separated criteria column.  Unknown
// entries make the whole value invalid so a corrupted row is caught at
// read time instead of silently widening eligibility.
func ParseTierCriteria(raw string) (TierCriteria, bool) {
    parts := strings.Split(raw, ",")
    out := make(TierCriteria, 0, len(parts))
    seen := make(map[Tier]bool, len(parts))
    for _, p := range parts {
        if strings.TrimSpace(p) == "" {
            continue
        }
        t, ok := ParseTier(p)
        if !ok {
            return nil, false
        }
        if !seen[t] {
            seen[t] = true
            out = append(out, t)
        }
    }
    if len(out) == 0 {
        return nil, false
    }
    return out, true
}

// Allows reports whether the given tier is part of the criteria.
func (c TierCriteria) Allows(t Tier) bool {
    for _, e := range c {
        if e == t {
            return true
        }
    }
    return false
}

// String renders the criteria back into its storage form.
func (c TierCriteria) String() string {
    parts := make([]string, len(c))
    for i, t := range c {
        parts[i] = string(t)
    }
    return strings.Join(parts, ",")
}
