package flare

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	log "github.com/sirupsen/logrus"
)

// EscalationState carries the explicit retry state for transaction
// submission: how many attempts have run and how the fee grows per attempt.
// The fee for attempt n is base * (100 + n*BumpPercent) / 100, capped at
// base * CapPercent / 100.
type EscalationState struct {
	Attempt     int
	MaxAttempts int
	BumpPercent int64
	CapPercent  int64
}

func NewEscalationState(maxAttempts int) *EscalationState {
	return &EscalationState{
		MaxAttempts: maxAttempts,
		BumpPercent: 25,
		CapPercent:  300,
	}
}

// GasPrice computes the escalated fee for the current attempt.
func (s *EscalationState) GasPrice(base *big.Int) *big.Int {
	percent := 100 + int64(s.Attempt)*s.BumpPercent
	if percent > s.CapPercent {
		percent = s.CapPercent
	}
	price := new(big.Int).Mul(base, big.NewInt(percent))
	return price.Div(price, big.NewInt(100))
}

func (s *EscalationState) Exhausted() bool {
	return s.Attempt >= s.MaxAttempts
}

// isFeeOrTransientError reports whether a submission error is worth retrying
// with a higher fee; anything else propagates to the caller untouched.
func isFeeOrTransientError(err error) bool {
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "underpriced") ||
		strings.Contains(message, "replacement transaction") ||
		strings.Contains(message, "already known") ||
		strings.Contains(message, "timeout") ||
		strings.Contains(message, "connection")
}

// SubmitWithEscalation drives send through the escalation state: each attempt
// gets a fresh fee, and only fee-market and transport errors are retried.
func SubmitWithEscalation(
	client FlareClient,
	opts *bind.TransactOpts,
	state *EscalationState,
	send func(*bind.TransactOpts) (*types.Transaction, error),
) (*types.Transaction, error) {
	base, err := client.SuggestGasPrice()
	if err != nil {
		return nil, err
	}

	var lastErr error
	for !state.Exhausted() {
		opts.GasPrice = state.GasPrice(base)

		tx, err := send(opts)
		if err == nil {
			return tx, nil
		}
		lastErr = err

		if !isFeeOrTransientError(err) {
			return nil, err
		}

		state.Attempt++
		log.Warn("[FLARE] Submission attempt ", state.Attempt, " failed, escalating fee: ", err)
		time.Sleep(time.Duration(state.Attempt) * time.Second)
	}

	return nil, lastErr
}
