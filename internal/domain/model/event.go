package model

import "time"

// EventName is the closed set of contract events the decoder recognizes.
type EventName string

const (
	EventTaskCreated     EventName = "TaskCreated"
	EventTaskFunded      EventName = "TaskFunded"
	EventTaskCancelled   EventName = "TaskCancelled"
	EventTaskClosed      EventName = "TaskClosed"
	EventTaskRefunded    EventName = "TaskRefunded"
	EventClaimed         EventName = "Claimed"
	EventProofSubmitted  EventName = "ProofSubmitted"
	EventApproved        EventName = "Approved"
	EventRejected        EventName = "Rejected"
	EventWithdrawn       EventName = "Withdrawn"
	EventDisputeOpened   EventName = "DisputeOpened"
	EventDisputeResolved EventName = "DisputeResolved"
)

// EventRecord is the append-only journal row for one observed log. Its
// primary key (ChainID, ContractAddress, TxHash, LogIndex) makes insertion
// idempotent: a primary-key conflict means the log was already journaled.
type EventRecord struct {
	ChainID         int64
	ContractAddress string
	TxHash          string
	LogIndex        int64
	BlockNumber     int64
	BlockHash       string
	EventName       EventName
	TaskID          *string
	Args            map[string]interface{}
	ObservedAt      time.Time
}
