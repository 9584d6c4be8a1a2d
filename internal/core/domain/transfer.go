package domain

import (
	"math/big"
	"time"
)

// Transfer is one decoded ERC-20 Transfer log, persisted 1:1 per data event.
type Transfer struct {
	Chain       string    `json:"blockchain"`
	From        string    `json:"from_address"`
	To          string    `json:"to_address"`
	Token       string    `json:"token_address"`
	RawAmount   *big.Int  `json:"raw_amount"`
	TxHash      string    `json:"transaction_hash"`
	LogIndex    uint64    `json:"event_index"`
	IngestedAt  time.Time `json:"block_timestamp"` // wall clock at processing, not block time
	BlockNumber uint64    `json:"block_number"`
	BlockHash   string    `json:"block_hash"`
}
