package oracle

import (
	"errors"
	"fmt"
	"math/big"

	"lendnet/core/events"
	nativecommon "lendnet/native/common"
)

var (
	// ErrNilState marks calls issued before the engine was wired to state.
	ErrNilState = errors.New("oracle engine: state not configured")
	// ErrUnauthorized is returned when a score write comes from anyone other
	// than the configured oracle address.
	ErrUnauthorized = errors.New("oracle engine: caller is not the oracle")
	// ErrScoreOutOfRange marks score writes outside the configured bounds.
	ErrScoreOutOfRange = errors.New("oracle engine: score out of range")
	// ErrInvalidBounds marks construction with unusable score bounds.
	ErrInvalidBounds = errors.New("oracle engine: invalid score bounds")
)

const moduleName = "oracle"

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var scorePrefix = []byte("oracle/score/")

func scoreKey(subject [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", scorePrefix, subject))
}

// Engine maintains the reputation score ledger. A single authorised oracle
// address may write scores; everyone may query them. Score bounds are fixed
// at construction.
type Engine struct {
	state    engineState
	oracle   [20]byte
	minScore uint64
	maxScore uint64
	emitter  events.Emitter
	pauses   nativecommon.PauseView
}

// NewEngine constructs an oracle engine. maxScore must be positive and not
// below minScore.
func NewEngine(oracleAddr [20]byte, minScore, maxScore uint64) (*Engine, error) {
	if maxScore == 0 || minScore > maxScore {
		return nil, ErrInvalidBounds
	}
	return &Engine{
		oracle:   oracleAddr,
		minScore: minScore,
		maxScore: maxScore,
		emitter:  events.NoopEmitter{},
	}, nil
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPauses wires the module pause registry.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// MinScore returns the lower score bound.
func (e *Engine) MinScore() uint64 { return e.minScore }

// MaxScore returns the upper score bound.
func (e *Engine) MaxScore() uint64 { return e.maxScore }

// UpdateScore overwrites the stored score for subject. Only the configured
// oracle address may call it and the score must lie within the configured
// bounds. There is no history and no rate limiting.
func (e *Engine) UpdateScore(caller, subject [20]byte, score uint64) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if caller != e.oracle {
		return ErrUnauthorized
	}
	if score < e.minScore || score > e.maxScore {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrScoreOutOfRange, score, e.minScore, e.maxScore)
	}
	if err := e.state.KVPut(scoreKey(subject), score); err != nil {
		return err
	}
	e.emit(ScoreUpdated{Subject: subject, Score: score})
	return nil
}

// UserScore returns the stored score for subject, or the minimum score when
// the subject has never been scored.
func (e *Engine) UserScore(subject [20]byte) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	var score uint64
	ok, err := e.state.KVGet(scoreKey(subject), &score)
	if err != nil {
		return 0, err
	}
	if !ok {
		return e.minScore, nil
	}
	return score, nil
}

// EligibleForLoan reports whether subject's score meets the required
// threshold.
func (e *Engine) EligibleForLoan(subject [20]byte, required uint64) (bool, error) {
	score, err := e.UserScore(subject)
	if err != nil {
		return false, err
	}
	return score >= required, nil
}

// MaxLoanAmount derives the cap for subject as base * score * 2 / maxScore.
// The product is taken in the arbitrary-precision domain before the
// truncating division, so a base at the type's maximum cannot overflow.
func (e *Engine) MaxLoanAmount(subject [20]byte, base *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if base == nil || base.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	score, err := e.UserScore(subject)
	if err != nil {
		return nil, err
	}
	amount := new(big.Int).Mul(base, new(big.Int).SetUint64(score))
	amount.Mul(amount, big.NewInt(2))
	return amount.Quo(amount, new(big.Int).SetUint64(e.maxScore)), nil
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}
