package derive

import (
	"math"
	"math/big"
	"testing"

	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const week = int64(7 * 24 * 3600)

func TestZeroDenominatorsYieldZero(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("Percent over a zero total is 0", prop.ForAll(
		func(part int64) bool {
			return Percent(big.NewInt(part), big.NewInt(0)) == 0
		},
		gen.Int64(),
	))
	properties.Property("Ratio over a zero total is 0 and never NaN", prop.ForAll(
		func(part int64) bool {
			r := Ratio(part, 0)
			return r == 0 && !math.IsNaN(r)
		},
		gen.Int64(),
	))
	properties.Property("empty lock window reports zero progress", prop.ForAll(
		func(at, now int64) bool {
			p := LockProgress(at, at, now)
			return p.LockedPercent == 0 && p.RemainingPercent == 0 && !math.IsNaN(p.LockedPercent)
		},
		gen.Int64Range(0, 1<<40),
		gen.Int64Range(0, 1<<40),
	))

	properties.TestingRun(t)
}

func TestNegativeRemainingClampsToZero(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("ClampZero never returns a negative", prop.ForAll(
		func(v int64) bool {
			c := ClampZero(v)
			return c >= 0 && (v < 0 || c == v)
		},
		gen.Int64(),
	))
	properties.Property("locks past their end have no locked period", prop.ForAll(
		func(start, length, past int64) bool {
			end := start + length
			p := LockProgress(start, end, end+past)
			return p.LockedSeconds == 0 && p.Unlocked && p.ExtendableEpochs >= 0
		},
		gen.Int64Range(0, 1<<32),
		gen.Int64Range(0, 1<<32),
		gen.Int64Range(0, 1<<32),
	))

	properties.TestingRun(t)
}

func TestApprovalToggle(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("approved iff allowance exceeds the amount", prop.ForAll(
		func(allowance, amount int64) bool {
			got := Approval(big.NewInt(allowance), big.NewInt(amount))
			return got == ApprovalState(allowance > amount)
		},
		gen.Int64Range(0, math.MaxInt64/2),
		gen.Int64Range(0, math.MaxInt64/2),
	))
	properties.Property("max allowance stays approved", prop.ForAll(
		func(amount int64) bool {
			return Approval(ethmath.MaxBig256, big.NewInt(amount)) == Approved
		},
		gen.Int64Range(0, math.MaxInt64/2),
	))

	properties.TestingRun(t)
}

func TestApprovalExample(t *testing.T) {
	amount, err := ParseEther("80")
	require.NoError(t, err)
	allowance, err := ParseEther("50")
	require.NoError(t, err)

	assert.Equal(t, NotApproved, Approval(allowance, amount))
	assert.Equal(t, NotApproved, Approval(amount, amount), "equal allowance is not enough")
	assert.Equal(t, Approved, Approval(ethmath.MaxBig256, amount))

	huge := new(big.Int).Sub(ethmath.MaxBig256, big.NewInt(1))
	assert.Equal(t, Approved, Approval(ethmath.MaxBig256, huge))
	assert.Equal(t, NotApproved, Approval(nil, amount))
}

func TestLockProgressExample(t *testing.T) {
	t0 := int64(1_600_000_000)
	p := LockProgress(t0, t0+100*week, t0+40*week)

	assert.Equal(t, 60*week, p.LockedSeconds)
	assert.Equal(t, 100*week, p.TotalSeconds)
	assert.Equal(t, int64(60), p.LockedWeeks)
	assert.InDelta(t, 60.0, p.LockedPercent, 1e-9)
	assert.Equal(t, int64(208-60), p.ExtendableEpochs)
	assert.InDelta(t, 40.0, p.RemainingPercent, 1e-9)
	assert.False(t, p.Unlocked)
}

func TestStakeAndVoteShares(t *testing.T) {
	assert.Equal(t, int64(0), StakePercent(nil, big.NewInt(5)))
	assert.Equal(t, int64(0), StakePercent(big.NewInt(0), big.NewInt(0)))
	assert.Equal(t, int64(25), StakePercent(big.NewInt(25), big.NewInt(75)))

	forPct, againstPct := VoteShare(big.NewInt(0), big.NewInt(0))
	assert.Equal(t, int64(0), forPct)
	assert.Equal(t, int64(0), againstPct)

	forPct, againstPct = VoteShare(big.NewInt(3), big.NewInt(1))
	assert.Equal(t, int64(75), forPct)
	assert.Equal(t, int64(25), againstPct)
}

func TestParseAndFormatUnits(t *testing.T) {
	v, err := ParseEther("1.5")
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000", v.String())
	assert.Equal(t, "1.50", FormatEther(v))

	v, err = ParseEther(".25")
	require.NoError(t, err)
	assert.Equal(t, "0.25", FormatEther(v))

	_, err = ParseEther("")
	require.ErrorIs(t, err, ErrEmptyAmount)
	_, err = ParseEther("abc")
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ParseEther("-1")
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ParseUnits("1.0001", 2)
	require.ErrorIs(t, err, ErrTooPrecise)

	assert.Equal(t, "0.00", FormatEther(nil))
	assert.Equal(t, "1.23", FormatGwei(big.NewInt(1_234_567_890)))
	assert.Equal(t, "12", FormatUnits(big.NewInt(12), 0, 0))
}

func TestProgressVariant(t *testing.T) {
	assert.Equal(t, "danger", ProgressVariant(0))
	assert.Equal(t, "warning", ProgressVariant(25))
	assert.Equal(t, "info", ProgressVariant(60))
	assert.Equal(t, "success", ProgressVariant(100))
}
