// Package types holds the public wire types shared by the node, its HTTP API and clients.
package types

// RewardSender is the reserved sender of mining-reward transactions.
const RewardSender = "0"

type Transaction struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
}

type Block struct {
	Index        int           `json:"index"`
	Timestamp    float64       `json:"timestamp"` // unix seconds
	Transactions []Transaction `json:"transactions"`
	Proof        int64         `json:"proof"`
	PreviousHash string        `json:"previous_hash"`
}

// Clone returns a deep copy of b.
func (b Block) Clone() Block {
	out := b
	out.Transactions = make([]Transaction, len(b.Transactions))
	copy(out.Transactions, b.Transactions)
	return out
}
