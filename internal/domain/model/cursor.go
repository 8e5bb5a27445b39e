package model

import "time"

// IndexerCursor tracks the highest block fully applied for one
// (chain id, contract address) pair. It never advances past head minus the
// configured confirmation depth.
type IndexerCursor struct {
	ChainID            int64
	ContractAddress    string
	LastProcessedBlock int64
	UpdatedAt          time.Time
}
