package model

import "time"

// OffchainProof is an append-only row binding off-chain proof text to the
// on-chain commitment recorded by ProofSubmitted. History is retained: a
// submission may accumulate several rows, and the latest one wins for
// read purposes.
type OffchainProof struct {
	ChainID         int64
	ContractAddress string
	TaskID          string
	SubmissionID    int64
	Wallet          string
	ProofText       string
	ProofHash       string
	TxHash          *string
	CreatedAt       time.Time
}
