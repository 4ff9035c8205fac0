package league

// Tier is the caller's access level. It controls which league-table fields
// and how much deal-level detail are visible.
type Tier string

const (
	TierGuest      Tier = "guest"
	TierFree       Tier = "free"
	TierSubscriber Tier = "subscriber"
)

// Claims is the identity attribute set extracted from a validated access
// token. TierAttribute is a custom attribute set out-of-band when the user is
// provisioned; it is not trusted beyond the recognized values below.
type Claims struct {
	UserID        string
	TierAttribute string
}

// ResolveTier maps optional identity claims to a Tier. Absent claims resolve
// to guest. Unrecognized tier attributes resolve to guest as well: an unknown
// value must never be granted elevated access. "premium" is accepted as a
// legacy alias for subscriber. Pure function, never fails.
func ResolveTier(claims *Claims) Tier {
	if claims == nil {
		return TierGuest
	}
	switch claims.TierAttribute {
	case "free":
		return TierFree
	case "subscriber", "premium":
		return TierSubscriber
	}
	return TierGuest
}

func (t Tier) level() int {
	switch t {
	case TierSubscriber:
		return 2
	case TierFree:
		return 1
	}
	return 0
}

// AtLeast reports whether t grants at least the privileges of other.
func (t Tier) AtLeast(other Tier) bool {
	return t.level() >= other.level()
}
