package league

import "testing"

func TestResolveTier(t *testing.T) {
	tests := []struct {
		name   string
		claims *Claims
		want   Tier
	}{
		{"no claims", nil, TierGuest},
		{"empty attribute", &Claims{UserID: "1"}, TierGuest},
		{"free", &Claims{UserID: "1", TierAttribute: "free"}, TierFree},
		{"subscriber", &Claims{UserID: "1", TierAttribute: "subscriber"}, TierSubscriber},
		{"premium legacy alias", &Claims{UserID: "1", TierAttribute: "premium"}, TierSubscriber},
		{"bogus value fails closed", &Claims{UserID: "1", TierAttribute: "bogus"}, TierGuest},
		{"admin is not a tier", &Claims{UserID: "1", TierAttribute: "admin"}, TierGuest},
		{"case sensitive", &Claims{UserID: "1", TierAttribute: "Subscriber"}, TierGuest},
		{"guest literal stays guest", &Claims{UserID: "1", TierAttribute: "guest"}, TierGuest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveTier(tt.claims); got != tt.want {
				t.Errorf("ResolveTier(%+v) = %q, want %q", tt.claims, got, tt.want)
			}
		})
	}
}

func TestTierAtLeast(t *testing.T) {
	if !TierSubscriber.AtLeast(TierFree) || !TierSubscriber.AtLeast(TierGuest) {
		t.Error("subscriber should satisfy every tier")
	}
	if !TierFree.AtLeast(TierGuest) {
		t.Error("free should satisfy guest")
	}
	if TierFree.AtLeast(TierSubscriber) {
		t.Error("free must not satisfy subscriber")
	}
	if TierGuest.AtLeast(TierFree) {
		t.Error("guest must not satisfy free")
	}
	if !TierGuest.AtLeast(TierGuest) {
		t.Error("a tier satisfies itself")
	}
}
