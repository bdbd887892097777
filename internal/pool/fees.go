package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// accruedFees is an accumulate-then-collect balance pair. Balances only grow
// between collections and are zeroed atomically with the payout.
type accruedFees struct {
	amount0 *big.Int
	amount1 *big.Int
}

func newAccruedFees() *accruedFees {
	return &accruedFees{amount0: big.NewInt(0), amount1: big.NewInt(0)}
}

func (f *accruedFees) credit(zeroForOne bool, amount *big.Int) {
	if amount.Sign() <= 0 {
		return
	}
	if zeroForOne {
		f.amount0.Add(f.amount0, amount)
	} else {
		f.amount1.Add(f.amount1, amount)
	}
}

// take zeroes the balances and returns the amounts that were held.
func (f *accruedFees) take() (*big.Int, *big.Int) {
	amount0, amount1 := f.amount0, f.amount1
	f.amount0 = big.NewInt(0)
	f.amount1 = big.NewInt(0)
	return amount0, amount1
}

// referrerFeeStore keeps per-referrer accrued balances. Entries are created
// on first accrual and persist indefinitely.
type referrerFeeStore struct {
	accounts map[common.Address]*accruedFees
}

func newReferrerFeeStore() *referrerFeeStore {
	return &referrerFeeStore{accounts: make(map[common.Address]*accruedFees)}
}

func (s *referrerFeeStore) account(referrer common.Address) *accruedFees {
	acct := s.accounts[referrer]
	if acct == nil {
		acct = newAccruedFees()
		s.accounts[referrer] = acct
	}
	return acct
}

// balance returns the accrued amounts without mutating the account.
func (s *referrerFeeStore) balance(referrer common.Address) (*big.Int, *big.Int) {
	if acct := s.accounts[referrer]; acct != nil {
		return new(big.Int).Set(acct.amount0), new(big.Int).Set(acct.amount1)
	}
	return big.NewInt(0), big.NewInt(0)
}

// feeSplit is the outcome of the three-tier fee extraction for one swap step.
type feeSplit struct {
	protocol *big.Int
	referrer *big.Int
	lp       *big.Int
}

// splitStepFee applies the extraction hierarchy to a step's raw fee amount.
// The protocol share comes off first; the referrer share is a fraction of the
// remainder, not of the gross fee. When the referrer path is not permitted
// the referrer share folds back into the protocol share so no value is lost.
func splitStepFee(feeAmount *big.Int, protocolDenom, referrerDenom uint8, referrerPermitted bool) feeSplit {
	remaining := new(big.Int).Set(feeAmount)
	split := feeSplit{
		protocol: big.NewInt(0),
		referrer: big.NewInt(0),
	}

	if protocolDenom > 0 {
		split.protocol.Div(remaining, new(big.Int).SetUint64(uint64(protocolDenom)))
		remaining.Sub(remaining, split.protocol)
	}

	if referrerDenom > 0 {
		share := new(big.Int).Div(remaining, new(big.Int).SetUint64(uint64(referrerDenom)))
		remaining.Sub(remaining, share)
		if referrerPermitted {
			split.referrer = share
		} else {
			split.protocol.Add(split.protocol, share)
		}
	}

	split.lp = remaining
	return split
}
