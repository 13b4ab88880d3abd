package model

// DecodeError records a log that was skipped during a sync.
type DecodeError struct {
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	Address     string `json:"address"`
	Topic0      string `json:"topic0"`
	Stage       string `json:"stage"`
	Error       string `json:"error"`
}

// FailedRange is a block window whose logs could not be fetched.
type FailedRange struct {
	Address string `json:"address"`
	From    uint64 `json:"from"`
	To      uint64 `json:"to"`
	Error   string `json:"error"`
}
