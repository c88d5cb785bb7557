// Package multiplier implements the reward-multiplier engine for staked
// positions: a deterministic, monotonic mapping from (amount, lockup
// duration) to a basis-point multiplier.
//
// The duration axis interpolates linearly between fixed anchor points
// (30/90/180/365 days by default). The amount axis is a step function of
// tier bonuses — every amount within one tier yields the identical flat
// bonus. All arithmetic is exact integer basis-point math; amounts use
// shopspring/decimal — never float64 for money.
//
// A multiplier of 0 is the sentinel for "invalid input" and must be
// treated as a rejection by callers, never as a valid multiplier.
package multiplier

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

// BasisPoints is the fixed-point scale: 10000 = 1.0×.
const BasisPoints = 10000

// Day is one day in seconds, the unit anchor durations are quoted in.
const Day = 24 * 60 * 60

var (
	// ErrNoAnchors is returned when an engine is configured without
	// duration anchors.
	ErrNoAnchors = errors.New("multiplier: at least two duration anchors required")

	// ErrNonMonotonicAnchors is returned when anchor durations or values
	// do not strictly increase / non-strictly increase respectively.
	ErrNonMonotonicAnchors = errors.New("multiplier: anchors must increase in duration and never decrease in value")

	// ErrNonMonotonicTiers is returned when tier thresholds or bonuses
	// are not ordered ascending.
	ErrNonMonotonicTiers = errors.New("multiplier: tiers must increase in threshold and never decrease in bonus")

	// ErrInvalidMinStake is returned when the protocol minimum is not a
	// positive whole number of base units.
	ErrInvalidMinStake = errors.New("multiplier: minimum stake must be a positive integer amount")
)

// Engine maps (amount, duration) to a basis-point multiplier.
// Implementations must be stateless, deterministic, and monotonic
// non-decreasing in both arguments; 0 signals an invalid input.
type Engine interface {
	Multiplier(amount decimal.Decimal, durationSecs int64) int64

	// MinDuration and MaxDuration bound the supported lockup range in
	// seconds. Durations above MaxDuration saturate; durations below
	// MinDuration are invalid.
	MinDuration() int64
	MaxDuration() int64

	// MinStake is the protocol minimum amount in base units.
	MinStake() decimal.Decimal
}

// Anchor maps one lockup duration (seconds) to a base multiplier (bp).
type Anchor struct {
	Duration int64
	Value    int64
}

// Tier maps a minimum amount threshold to a flat bonus (bp). The bonus
// applies to every amount at or above Threshold, up to the next tier.
type Tier struct {
	Threshold decimal.Decimal
	Bonus     int64
}

// TieredEngine is the default engine: anchor interpolation on the
// duration axis plus a tier-bonus step function on the amount axis.
type TieredEngine struct {
	anchors  []Anchor
	tiers    []Tier
	minStake decimal.Decimal
}

// DefaultTiered returns the engine with the protocol's default anchors
// and tiers. Floor: Multiplier(1000, 30 days) = 11400 bp.
// Ceiling: Multiplier(1000000, 365 days) = 15800 bp.
func DefaultTiered() *TieredEngine {
	e, err := NewTieredEngine(
		[]Anchor{
			{Duration: 30 * Day, Value: 10800},
			{Duration: 90 * Day, Value: 11200},
			{Duration: 180 * Day, Value: 12000},
			{Duration: 365 * Day, Value: 14000},
		},
		[]Tier{
			{Threshold: decimal.NewFromInt(1_000), Bonus: 600},
			{Threshold: decimal.NewFromInt(10_000), Bonus: 900},
			{Threshold: decimal.NewFromInt(100_000), Bonus: 1300},
			{Threshold: decimal.NewFromInt(1_000_000), Bonus: 1800},
		},
		decimal.NewFromInt(1_000),
	)
	if err != nil {
		panic(err) // defaults are statically valid
	}
	return e
}

// NewTieredEngine builds an engine from explicit anchors and tiers,
// validating that both axes are monotonic so the engine's guarantees
// hold by construction.
func NewTieredEngine(anchors []Anchor, tiers []Tier, minStake decimal.Decimal) (*TieredEngine, error) {
	if len(anchors) < 2 {
		return nil, ErrNoAnchors
	}
	if minStake.LessThanOrEqual(decimal.Zero) || !minStake.IsInteger() {
		return nil, ErrInvalidMinStake
	}

	as := make([]Anchor, len(anchors))
	copy(as, anchors)
	sort.Slice(as, func(i, j int) bool { return as[i].Duration < as[j].Duration })
	for i := 1; i < len(as); i++ {
		if as[i].Duration == as[i-1].Duration || as[i].Value < as[i-1].Value {
			return nil, ErrNonMonotonicAnchors
		}
	}

	ts := make([]Tier, len(tiers))
	copy(ts, tiers)
	sort.Slice(ts, func(i, j int) bool { return ts[i].Threshold.LessThan(ts[j].Threshold) })
	for i := 1; i < len(ts); i++ {
		if ts[i].Threshold.Equal(ts[i-1].Threshold) || ts[i].Bonus < ts[i-1].Bonus {
			return nil, ErrNonMonotonicTiers
		}
	}

	return &TieredEngine{anchors: as, tiers: ts, minStake: minStake}, nil
}

func (e *TieredEngine) MinDuration() int64        { return e.anchors[0].Duration }
func (e *TieredEngine) MaxDuration() int64        { return e.anchors[len(e.anchors)-1].Duration }
func (e *TieredEngine) MinStake() decimal.Decimal { return e.minStake }

// Multiplier returns the basis-point multiplier for the given amount and
// lockup duration, or 0 when the input is invalid.
//
// Amounts below the protocol minimum and durations shorter than the
// minimum anchor are invalid. Durations beyond the maximum anchor are
// clamped to the maximum anchor's value — re-weighted or extended
// positions can exceed the longest anchor and must saturate, not fail.
func (e *TieredEngine) Multiplier(amount decimal.Decimal, durationSecs int64) int64 {
	if amount.LessThan(e.minStake) {
		return 0
	}
	if durationSecs < e.MinDuration() {
		return 0
	}
	return e.base(durationSecs) + e.bonus(amount)
}

// base interpolates the duration axis between the bracketing anchors.
// Integer math: value = v1 + (v2-v1)*(d-d1)/(d2-d1), floored. Monotonic
// because anchor values never decrease.
func (e *TieredEngine) base(durationSecs int64) int64 {
	last := e.anchors[len(e.anchors)-1]
	if durationSecs >= last.Duration {
		return last.Value
	}
	for i := 1; i < len(e.anchors); i++ {
		hi := e.anchors[i]
		if durationSecs > hi.Duration {
			continue
		}
		lo := e.anchors[i-1]
		span := hi.Duration - lo.Duration
		return lo.Value + (hi.Value-lo.Value)*(durationSecs-lo.Duration)/span
	}
	return last.Value
}

// bonus returns the flat tier bonus for the highest tier the amount
// reaches, scanning thresholds descending.
func (e *TieredEngine) bonus(amount decimal.Decimal) int64 {
	for i := len(e.tiers) - 1; i >= 0; i-- {
		if amount.GreaterThanOrEqual(e.tiers[i].Threshold) {
			return e.tiers[i].Bonus
		}
	}
	return 0
}

// LinearEngine is the alternative engine: a single clamped-linear
// formula that re-weights both axes continuously instead of in tiers:
//
//	base + clamp(duration)·clamp(amount)·maxBonus / (maxDuration·maxAmount)
//
// Both axes saturate at their configured maxima, so the result is
// bounded in [base, base+maxBonus], monotonic, and deterministic.
type LinearEngine struct {
	baseBP      int64
	maxBonusBP  int64
	minDuration int64
	maxDuration int64
	minStake    decimal.Decimal
	maxAmount   decimal.Decimal
}

// NewLinearEngine builds the clamped-linear engine.
func NewLinearEngine(baseBP, maxBonusBP, minDuration, maxDuration int64, minStake, maxAmount decimal.Decimal) (*LinearEngine, error) {
	if minDuration <= 0 || maxDuration <= minDuration {
		return nil, ErrNonMonotonicAnchors
	}
	if minStake.LessThanOrEqual(decimal.Zero) || !minStake.IsInteger() {
		return nil, ErrInvalidMinStake
	}
	if maxAmount.LessThanOrEqual(minStake) || maxBonusBP < 0 || baseBP <= 0 {
		return nil, ErrNonMonotonicTiers
	}
	return &LinearEngine{
		baseBP:      baseBP,
		maxBonusBP:  maxBonusBP,
		minDuration: minDuration,
		maxDuration: maxDuration,
		minStake:    minStake,
		maxAmount:   maxAmount,
	}, nil
}

// DefaultLinear returns a linear engine spanning the same range as the
// default tiered engine: 10800 bp base, 5000 bp maximum bonus.
func DefaultLinear() *LinearEngine {
	e, err := NewLinearEngine(10800, 5000, 30*Day, 365*Day,
		decimal.NewFromInt(1_000), decimal.NewFromInt(1_000_000))
	if err != nil {
		panic(err)
	}
	return e
}

func (e *LinearEngine) MinDuration() int64        { return e.minDuration }
func (e *LinearEngine) MaxDuration() int64        { return e.maxDuration }
func (e *LinearEngine) MinStake() decimal.Decimal { return e.minStake }

// Multiplier applies the clamped-linear formula. Exact decimal
// arithmetic with a single truncating division keeps the result
// deterministic across calls.
func (e *LinearEngine) Multiplier(amount decimal.Decimal, durationSecs int64) int64 {
	if amount.LessThan(e.minStake) {
		return 0
	}
	if durationSecs < e.minDuration {
		return 0
	}

	d := durationSecs
	if d > e.maxDuration {
		d = e.maxDuration
	}
	a := amount
	if a.GreaterThan(e.maxAmount) {
		a = e.maxAmount
	}

	num := decimal.NewFromInt(d).Mul(a).Mul(decimal.NewFromInt(e.maxBonusBP))
	den := decimal.NewFromInt(e.maxDuration).Mul(e.maxAmount)
	q, _ := num.QuoRem(den, 0)
	return e.baseBP + q.IntPart()
}
