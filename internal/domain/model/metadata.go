package model

import "time"

// OffchainTaskMetadata is the upserted human-readable description of a
// task, bound to the on-chain spec_hash commitment.
type OffchainTaskMetadata struct {
	TaskID       string
	SpecHash     string
	Title        string
	Instructions string
	CreatedBy    string
	UpdatedAt    time.Time
}
