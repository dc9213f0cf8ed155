// Package derive holds the display-side arithmetic over on-chain values:
// percentages, lock progress, vote shares and the approval toggle. Every
// division is guarded; a zero denominator yields zero.
package derive

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/math"

	"workhard-dashboard/core/dao"
)

var hundred = big.NewInt(100)

// Percent returns part*100/total truncated, or 0 when total is zero or nil.
func Percent(part, total *big.Int) int64 {
	if part == nil || total == nil || total.Sign() == 0 {
		return 0
	}
	p := new(big.Int).Mul(part, hundred)
	p.Quo(p, total)
	if !p.IsInt64() {
		return 0
	}
	return p.Int64()
}

// Ratio returns part*100/total as a float, 0 when total is zero.
func Ratio(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) * 100 / float64(total)
}

// ClampZero floors negative values at zero.
func ClampZero(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

// StakePercent is the share of a holder's tokens sitting in the locker.
func StakePercent(staked, balance *big.Int) int64 {
	if staked == nil {
		return 0
	}
	total := new(big.Int).Set(staked)
	if balance != nil {
		total.Add(total, balance)
	}
	return Percent(staked, total)
}

// VoteShare splits the for/against tally into two percentages.
func VoteShare(forVotes, againstVotes *big.Int) (forPct, againstPct int64) {
	if forVotes == nil || againstVotes == nil {
		return 0, 0
	}
	total := new(big.Int).Add(forVotes, againstVotes)
	return Percent(forVotes, total), Percent(againstVotes, total)
}

// Progress is the display state of a lock at a point in time.
type Progress struct {
	LockedSeconds     int64   `json:"locked_seconds"`
	TotalSeconds      int64   `json:"total_seconds"`
	LockedPercent     float64 `json:"locked_percent"`
	LockedWeeks       int64   `json:"locked_weeks"`
	ExtendableEpochs  int64   `json:"extendable_epochs"`
	ElapsedSeconds    int64   `json:"elapsed_seconds"`
	// RemainingPercent is the elapsed share of the window, total minus
	// locked, which is the period the lock can be topped back up by.
	RemainingPercent  float64 `json:"remaining_percent"`
	Unlocked          bool    `json:"unlocked"`
	LockedYearsString string  `json:"locked_years"`
}

const (
	weekSeconds = int64(dao.Epoch / time.Second)
	yearSeconds = 86400 * 365
)

// LockProgress computes the remaining lock period and how far it may still be
// extended. now is a block timestamp in unix seconds.
func LockProgress(start, end, now int64) Progress {
	locked := ClampZero(end - now)
	total := ClampZero(end - start)
	lockedWeeks := locked / weekSeconds
	elapsed := ClampZero(total - locked)
	return Progress{
		LockedSeconds:     locked,
		TotalSeconds:      total,
		LockedPercent:     Ratio(locked, total),
		LockedWeeks:       lockedWeeks,
		ExtendableEpochs:  ClampZero(dao.MaxLockEpochs - lockedWeeks),
		ElapsedSeconds:    elapsed,
		RemainingPercent:  Ratio(elapsed, total),
		Unlocked:          locked == 0,
		LockedYearsString: fmt.Sprintf("%.2f", float64(locked)/yearSeconds),
	}
}

// ApprovalState is the two-state toggle of approval-gated actions.
type ApprovalState bool

const (
	NotApproved ApprovalState = false
	Approved    ApprovalState = true
)

// Approval resolves the toggle from the cached allowance and the pending input.
// A maximum allowance stays approved whatever amount is typed.
func Approval(allowance, amount *big.Int) ApprovalState {
	if allowance == nil {
		return NotApproved
	}
	if allowance.Cmp(math.MaxBig256) == 0 {
		return Approved
	}
	if amount == nil {
		amount = new(big.Int)
	}
	return ApprovalState(allowance.Cmp(amount) > 0)
}

// ProgressVariant picks a bar colour from a percentage.
func ProgressVariant(percent float64) string {
	switch {
	case percent >= 75:
		return "success"
	case percent >= 50:
		return "info"
	case percent >= 25:
		return "warning"
	default:
		return "danger"
	}
}

var (
	ErrEmptyAmount   = dao.Err("amount is empty")
	ErrInvalidAmount = dao.Err("amount is not a number")
	ErrTooPrecise    = dao.Err("amount has more decimals than the token")
)

// ParseUnits converts a decimal string into base units.
func ParseUnits(s string, decimals int) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyAmount
	}
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	intPart, fracPart, _ := strings.Cut(s, ".")
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > decimals {
		return nil, fmt.Errorf("%w: %q", ErrTooPrecise, s)
	}
	digits := intPart + fracPart + strings.Repeat("0", decimals-len(fracPart))
	v, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return v, nil
}

// ParseEther parses an 18-decimal token amount.
func ParseEther(s string) (*big.Int, error) {
	return ParseUnits(s, 18)
}

// FormatUnits renders base units as a decimal string with places fractional
// digits, truncating rather than rounding.
func FormatUnits(v *big.Int, decimals, places int) string {
	if v == nil {
		v = new(big.Int)
	}
	neg := v.Sign() < 0
	abs := new(big.Int).Abs(v)
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(abs, unit, new(big.Int))

	out := whole.String()
	if places > 0 {
		fracStr := frac.String()
		if pad := decimals - len(fracStr); pad > 0 {
			fracStr = strings.Repeat("0", pad) + fracStr
		}
		if places < len(fracStr) {
			fracStr = fracStr[:places]
		} else {
			fracStr += strings.Repeat("0", places-len(fracStr))
		}
		out += "." + fracStr
	}
	if neg {
		out = "-" + out
	}
	return out
}

// FormatEther renders an 18-decimal amount with two decimals.
func FormatEther(v *big.Int) string {
	return FormatUnits(v, 18, 2)
}

// FormatGwei renders vote weights the way the union displays them.
func FormatGwei(v *big.Int) string {
	return FormatUnits(v, 9, 2)
}
