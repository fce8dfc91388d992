package api

import (
	"time"

	"github.com/VeltarosLabs/powledger/pkg/types"
)

type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

type Health struct {
	OK   bool   `json:"ok"`
	Time string `json:"time"`
}

type NodeStatus struct {
	NodeID     string `json:"nodeID"`
	StartedAt  string `json:"startedAt"`
	UptimeSec  int64  `json:"uptimeSec"`
	Peers      int    `json:"peers"`
	Length     int    `json:"length"`
	Pending    int    `json:"pending"`
	Difficulty int    `json:"difficulty"`
}

type ChainResponse struct {
	Chain  []types.Block `json:"chain"`
	Length int           `json:"length"`
}

type MineResponse struct {
	Message      string              `json:"message"`
	Index        int                 `json:"index"`
	Transactions []types.Transaction `json:"transactions"`
	Proof        int64               `json:"proof"`
	PreviousHash string              `json:"previous_hash"`
}

type TransactionRequest struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
}

type TransactionResponse struct {
	Message string `json:"message"`
	Index   int    `json:"index"`
}

type PendingResponse struct {
	Count        int                 `json:"count"`
	Transactions []types.Transaction `json:"transactions"`
}

type RegisterNodesRequest struct {
	Nodes []string `json:"nodes"`
}

type RegisterNodesResponse struct {
	Message    string   `json:"message"`
	TotalNodes []string `json:"total_nodes"`
}

type ResolveResponse struct {
	Message  string        `json:"message"`
	Replaced bool          `json:"replaced"`
	Chain    []types.Block `json:"chain"`
}

type PeerInfo struct {
	Addr      string    `json:"addr"`
	SeenAt    time.Time `json:"seenAt"`
	Source    string    `json:"source"`
	LastError string    `json:"lastError,omitempty"`
}

type PeerList struct {
	Count int        `json:"count"`
	Peers []PeerInfo `json:"peers"`
}

type InvalidAddress struct {
	Address string `json:"address"`
	Error   string `json:"error"`
}

type ErrorResponse struct {
	Error   string           `json:"error"`
	Invalid []InvalidAddress `json:"invalid,omitempty"`
}
