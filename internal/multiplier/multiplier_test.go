package multiplier

import (
	"testing"

	"github.com/shopspring/decimal"
)

// d is a test helper for creating decimals from int64.
func d(i int64) decimal.Decimal {
	return decimal.NewFromInt(i)
}

// --- Constructor tests ---

func TestNewTieredEngine_Valid(t *testing.T) {
	e, err := NewTieredEngine(
		[]Anchor{{Duration: 30 * Day, Value: 10000}, {Duration: 90 * Day, Value: 11000}},
		[]Tier{{Threshold: d(100), Bonus: 50}},
		d(100),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.MinDuration() != 30*Day || e.MaxDuration() != 90*Day {
		t.Errorf("unexpected duration range: [%d, %d]", e.MinDuration(), e.MaxDuration())
	}
}

func TestNewTieredEngine_TooFewAnchors(t *testing.T) {
	_, err := NewTieredEngine(
		[]Anchor{{Duration: 30 * Day, Value: 10000}},
		nil, d(100),
	)
	if err != ErrNoAnchors {
		t.Errorf("expected ErrNoAnchors, got %v", err)
	}
}

func TestNewTieredEngine_DecreasingAnchorValues(t *testing.T) {
	_, err := NewTieredEngine(
		[]Anchor{
			{Duration: 30 * Day, Value: 11000},
			{Duration: 90 * Day, Value: 10000},
		},
		nil, d(100),
	)
	if err != ErrNonMonotonicAnchors {
		t.Errorf("expected ErrNonMonotonicAnchors, got %v", err)
	}
}

func TestNewTieredEngine_DecreasingTierBonus(t *testing.T) {
	_, err := NewTieredEngine(
		[]Anchor{{Duration: 30 * Day, Value: 10000}, {Duration: 90 * Day, Value: 11000}},
		[]Tier{
			{Threshold: d(100), Bonus: 500},
			{Threshold: d(1000), Bonus: 100},
		},
		d(100),
	)
	if err != ErrNonMonotonicTiers {
		t.Errorf("expected ErrNonMonotonicTiers, got %v", err)
	}
}

func TestNewTieredEngine_FractionalMinStake(t *testing.T) {
	_, err := NewTieredEngine(
		[]Anchor{{Duration: 30 * Day, Value: 10000}, {Duration: 90 * Day, Value: 11000}},
		nil, decimal.NewFromFloat(0.5),
	)
	if err != ErrInvalidMinStake {
		t.Errorf("expected ErrInvalidMinStake, got %v", err)
	}
}

// --- Boundary tests ---

func TestMultiplier_DocumentedFloor(t *testing.T) {
	e := DefaultTiered()
	got := e.Multiplier(d(1000), 30*Day)
	if got != 11400 {
		t.Errorf("expected floor 11400 bp at (1000, 30d), got %d", got)
	}
}

func TestMultiplier_DocumentedCeiling(t *testing.T) {
	e := DefaultTiered()
	got := e.Multiplier(d(1_000_000), 365*Day)
	if got != 15800 {
		t.Errorf("expected ceiling 15800 bp at (1000000, 365d), got %d", got)
	}
}

func TestMultiplier_BelowMinimumAmountInvalid(t *testing.T) {
	e := DefaultTiered()
	if got := e.Multiplier(d(999), 30*Day); got != 0 {
		t.Errorf("expected 0 sentinel below minimum amount, got %d", got)
	}
	if got := e.Multiplier(decimal.Zero, 30*Day); got != 0 {
		t.Errorf("expected 0 sentinel for zero amount, got %d", got)
	}
}

func TestMultiplier_BelowMinimumDurationInvalid(t *testing.T) {
	e := DefaultTiered()
	if got := e.Multiplier(d(1000), 30*Day-1); got != 0 {
		t.Errorf("expected 0 sentinel below minimum anchor, got %d", got)
	}
	if got := e.Multiplier(d(1000), 0); got != 0 {
		t.Errorf("expected 0 sentinel for zero duration, got %d", got)
	}
}

func TestMultiplier_AboveMaxDurationClamps(t *testing.T) {
	e := DefaultTiered()
	atMax := e.Multiplier(d(1000), 365*Day)
	beyond := e.Multiplier(d(1000), 730*Day)
	if beyond != atMax {
		t.Errorf("duration beyond max anchor should clamp: at=%d beyond=%d", atMax, beyond)
	}
}

func TestMultiplier_AnchorsExact(t *testing.T) {
	e := DefaultTiered()
	// Tier bonus for 1000 is 600; anchors carry the base values.
	tests := []struct {
		days int64
		want int64
	}{
		{30, 10800 + 600},
		{90, 11200 + 600},
		{180, 12000 + 600},
		{365, 14000 + 600},
	}
	for _, tt := range tests {
		got := e.Multiplier(d(1000), tt.days*Day)
		if got != tt.want {
			t.Errorf("multiplier(1000, %dd) = %d, want %d", tt.days, got, tt.want)
		}
	}
}

func TestMultiplier_InterpolatesBetweenAnchors(t *testing.T) {
	e := DefaultTiered()
	// Midpoint of 30d(10800) and 90d(11200) is 60d → 11000 base + 600 tier.
	got := e.Multiplier(d(1000), 60*Day)
	if got != 11600 {
		t.Errorf("expected 11600 at 60d midpoint, got %d", got)
	}

	// Interpolated values stay strictly inside the bracketing anchors.
	lo := e.Multiplier(d(1000), 30*Day)
	hi := e.Multiplier(d(1000), 90*Day)
	mid := e.Multiplier(d(1000), 45*Day)
	if mid < lo || mid > hi {
		t.Errorf("interpolated %d escaped anchor bounds [%d, %d]", mid, lo, hi)
	}
}

// --- Tier step tests ---

func TestMultiplier_TierStepFunction(t *testing.T) {
	e := DefaultTiered()
	// All amounts within a tier yield the identical multiplier.
	inTier := []int64{1000, 1001, 5000, 9999}
	want := e.Multiplier(d(1000), 30*Day)
	for _, a := range inTier {
		if got := e.Multiplier(d(a), 30*Day); got != want {
			t.Errorf("multiplier(%d, 30d) = %d, want %d (same tier)", a, got, want)
		}
	}

	// Crossing the threshold steps the bonus up by exactly the delta.
	next := e.Multiplier(d(10_000), 30*Day)
	if next != want+300 {
		t.Errorf("expected tier step of 300 bp at 10000, got %d vs %d", next, want)
	}
}

// --- Monotonicity / determinism properties ---

func TestMultiplier_MonotonicInAmount(t *testing.T) {
	e := DefaultTiered()
	amounts := []int64{1000, 2000, 9999, 10_000, 50_000, 100_000, 999_999, 1_000_000, 5_000_000}
	durations := []int64{30 * Day, 45 * Day, 90 * Day, 200 * Day, 365 * Day}

	for _, dur := range durations {
		prev := int64(-1)
		for _, a := range amounts {
			got := e.Multiplier(d(a), dur)
			if got < prev {
				t.Errorf("monotonicity in amount violated at (%d, %ds): %d < %d", a, dur, got, prev)
			}
			prev = got
		}
	}
}

func TestMultiplier_MonotonicInDuration(t *testing.T) {
	e := DefaultTiered()
	amounts := []int64{1000, 10_000, 1_000_000}

	for _, a := range amounts {
		prev := int64(-1)
		for dur := int64(30 * Day); dur <= 400*Day; dur += 7 * Day {
			got := e.Multiplier(d(a), dur)
			if got < prev {
				t.Errorf("monotonicity in duration violated at (%d, %ds): %d < %d", a, dur, got, prev)
			}
			prev = got
		}
	}
}

func TestMultiplier_Deterministic(t *testing.T) {
	e := DefaultTiered()
	first := e.Multiplier(d(123_456), 217*Day)
	for i := 0; i < 100; i++ {
		if got := e.Multiplier(d(123_456), 217*Day); got != first {
			t.Fatalf("determinism violated on call %d: %d != %d", i, got, first)
		}
	}
}

// --- Linear engine tests ---

func TestLinearEngine_Bounds(t *testing.T) {
	e := DefaultLinear()

	floor := e.Multiplier(d(1000), 30*Day)
	if floor < 10800 || floor > 10800+5000 {
		t.Errorf("floor %d outside [base, base+maxBonus]", floor)
	}

	ceiling := e.Multiplier(d(1_000_000), 365*Day)
	if ceiling != 10800+5000 {
		t.Errorf("expected saturated ceiling %d, got %d", 10800+5000, ceiling)
	}
}

func TestLinearEngine_SaturatesBothAxes(t *testing.T) {
	e := DefaultLinear()

	atMax := e.Multiplier(d(1_000_000), 365*Day)
	if got := e.Multiplier(d(9_000_000), 365*Day); got != atMax {
		t.Errorf("amount beyond max should saturate: %d != %d", got, atMax)
	}
	if got := e.Multiplier(d(1_000_000), 900*Day); got != atMax {
		t.Errorf("duration beyond max should saturate: %d != %d", got, atMax)
	}
}

func TestLinearEngine_Monotonic(t *testing.T) {
	e := DefaultLinear()

	prev := int64(-1)
	for _, a := range []int64{1000, 10_000, 100_000, 500_000, 1_000_000, 2_000_000} {
		got := e.Multiplier(d(a), 180*Day)
		if got < prev {
			t.Errorf("linear engine not monotonic in amount at %d: %d < %d", a, got, prev)
		}
		prev = got
	}

	prev = -1
	for dur := int64(30 * Day); dur <= 400*Day; dur += 10 * Day {
		got := e.Multiplier(d(50_000), dur)
		if got < prev {
			t.Errorf("linear engine not monotonic in duration at %ds: %d < %d", dur, got, prev)
		}
		prev = got
	}
}

func TestLinearEngine_InvalidSentinel(t *testing.T) {
	e := DefaultLinear()
	if got := e.Multiplier(d(999), 90*Day); got != 0 {
		t.Errorf("expected 0 sentinel below minimum amount, got %d", got)
	}
	if got := e.Multiplier(d(1000), 29*Day); got != 0 {
		t.Errorf("expected 0 sentinel below minimum duration, got %d", got)
	}
}
