package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// RawLog is a chain log as returned by eth_getLogs, consumed within one chunk.
type RawLog struct {
	Address     common.Address
	Topics      []common.Hash
	Data        []byte
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}

// RawLogFromTypes converts a go-ethereum log.
func RawLogFromTypes(log types.Log) RawLog {
	topics := make([]common.Hash, len(log.Topics))
	copy(topics, log.Topics)
	data := make([]byte, len(log.Data))
	copy(data, log.Data)

	return RawLog{
		Address:     log.Address,
		Topics:      topics,
		Data:        data,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
	}
}

// Topic0 returns the event signature topic, or the zero hash for anonymous logs.
func (l RawLog) Topic0() common.Hash {
	if len(l.Topics) == 0 {
		return common.Hash{}
	}
	return l.Topics[0]
}
