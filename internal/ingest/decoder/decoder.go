// Package decoder turns raw eth_subscribe frames into transfers.
//
// Decoding is pure: no I/O and no state beyond the injected clock.
package decoder

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/vietddude/tokenstream/internal/core/domain"
)

const (
	addressHexLen = 40
	topicHexLen   = 64
)

var (
	// ErrRejected is matched by every RejectError.
	ErrRejected = errors.New("event rejected")
	// ErrMalformed marks a frame that is not a JSON object.
	ErrMalformed = errors.New("malformed envelope")
	// ErrMissing marks an absent field.
	ErrMissing = errors.New("missing field")
)

// RejectError names the first field of a data event that failed to parse.
type RejectError struct {
	Field string
	Value string
	Err   error
}

func (e *RejectError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("reject %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("reject %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *RejectError) Unwrap() error { return e.Err }

func (e *RejectError) Is(target error) bool { return target == ErrRejected }

// RPCError is the error object of a JSON-RPC response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Message is the classified form of one frame. Transfer is set only for
// KindDataEvent.
type Message struct {
	Kind           domain.MessageKind
	SubscriptionID string
	RPCError       *RPCError
	Transfer       *domain.Transfer
}

type envelope struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	Params *struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
}

type logResult struct {
	Address         string    `json:"address"`
	Topics          []*string `json:"topics"`
	Data            *string   `json:"data"`
	BlockNumber     *string   `json:"blockNumber"`
	TransactionHash string    `json:"transactionHash"`
	LogIndex        *string   `json:"logIndex"`
	BlockHash       string    `json:"blockHash"`
}

// Decoder decodes frames for one chain.
type Decoder struct {
	chain string
	now   func() time.Time
}

// New creates a decoder stamping transfers with chain. A nil now uses time.Now.
func New(chain string, now func() time.Time) *Decoder {
	if now == nil {
		now = time.Now
	}
	return &Decoder{chain: chain, now: now}
}

// Decode classifies raw and, for data events, extracts the transfer.
// A returned error is always a *RejectError.
func (d *Decoder) Decode(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Message{}, &RejectError{Field: "envelope", Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}

	if env.Params != nil && !isNull(env.Params.Result) {
		t, err := d.decodeLog(env.Params.Result)
		if err != nil {
			return Message{}, err
		}
		return Message{
			Kind:           domain.KindDataEvent,
			SubscriptionID: env.Params.Subscription,
			Transfer:       t,
		}, nil
	}

	switch {
	case env.Error != nil:
		return Message{Kind: domain.KindRPCError, RPCError: env.Error}, nil
	case len(env.ID) > 0 && !isNull(env.Result):
		var sub string
		if err := json.Unmarshal(env.Result, &sub); err == nil && sub != "" {
			return Message{Kind: domain.KindAck, SubscriptionID: sub}, nil
		}
	}
	return Message{Kind: domain.KindUnrecognized}, nil
}

func (d *Decoder) decodeLog(raw json.RawMessage) (*domain.Transfer, error) {
	var lg logResult
	if err := json.Unmarshal(raw, &lg); err != nil {
		return nil, &RejectError{Field: "result", Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}

	from, err := topicAddress(lg.Topics, 1)
	if err != nil {
		return nil, err
	}
	to, err := topicAddress(lg.Topics, 2)
	if err != nil {
		return nil, err
	}

	if lg.Data == nil {
		return nil, &RejectError{Field: "data", Err: ErrMissing}
	}
	amount, err := ParseBig(*lg.Data)
	if err != nil {
		return nil, &RejectError{Field: "data", Value: *lg.Data, Err: err}
	}

	if lg.BlockNumber == nil {
		return nil, &RejectError{Field: "blockNumber", Err: ErrMissing}
	}
	blockNumber, err := ParseUint(*lg.BlockNumber)
	if err != nil {
		return nil, &RejectError{Field: "blockNumber", Value: *lg.BlockNumber, Err: err}
	}

	if lg.LogIndex == nil {
		return nil, &RejectError{Field: "logIndex", Err: ErrMissing}
	}
	logIndex, err := ParseUint(*lg.LogIndex)
	if err != nil {
		return nil, &RejectError{Field: "logIndex", Value: *lg.LogIndex, Err: err}
	}

	return &domain.Transfer{
		Chain:       d.chain,
		From:        from,
		To:          to,
		Token:       lg.Address,
		RawAmount:   amount,
		TxHash:      lg.TransactionHash,
		LogIndex:    logIndex,
		IngestedAt:  d.now().UTC(),
		BlockNumber: blockNumber,
		BlockHash:   lg.BlockHash,
	}, nil
}

func topicAddress(topics []*string, i int) (string, error) {
	field := "topics[" + strconv.Itoa(i) + "]"
	if i >= len(topics) || topics[i] == nil {
		return "", &RejectError{Field: field, Err: ErrMissing}
	}
	addr, err := AddressFromTopic(*topics[i])
	if err != nil {
		return "", &RejectError{Field: field, Value: *topics[i], Err: err}
	}
	return addr, nil
}

// AddressFromTopic returns "0x" followed by the rightmost 40 hex characters
// of a 32-byte topic. Case is preserved.
func AddressFromTopic(topic string) (string, error) {
	digits, err := hexDigits(topic)
	if err != nil {
		return "", err
	}
	if len(digits) != topicHexLen {
		return "", fmt.Errorf("topic has %d hex digits, want %d", len(digits), topicHexLen)
	}
	return "0x" + digits[topicHexLen-addressHexLen:], nil
}

// ParseBig parses a 0x-prefixed big-endian unsigned hex quantity of any width.
func ParseBig(s string) (*big.Int, error) {
	digits, err := hexDigits(s)
	if err != nil {
		return nil, err
	}
	n, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity")
	}
	return n, nil
}

// ParseUint parses a 0x-prefixed hex quantity into a uint64.
func ParseUint(s string) (uint64, error) {
	digits, err := hexDigits(s)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(digits, 16, 64)
}

func hexDigits(s string) (string, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "", fmt.Errorf("missing 0x prefix")
	}
	digits := s[2:]
	if digits == "" {
		return "", fmt.Errorf("empty hex string")
	}
	for i := 0; i < len(digits); i++ {
		if !isHex(digits[i]) {
			return "", fmt.Errorf("invalid hex character %q", digits[i])
		}
	}
	return digits, nil
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
