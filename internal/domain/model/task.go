package model

// TaskStatus mirrors the on-chain task lifecycle. Status only advances; the
// event stream itself enforces legal ordering, so the projection writes the
// event's status unconditionally.
type TaskStatus int

const (
	TaskStatusNone      TaskStatus = 0
	TaskStatusCreated   TaskStatus = 1
	TaskStatusFunded    TaskStatus = 2
	TaskStatusCancelled TaskStatus = 3
	TaskStatusCompleted TaskStatus = 4
	TaskStatusClosed    TaskStatus = 5
)

// Task is the projected state of one on-chain task. Big integers are kept as
// decimal strings end to end — never float64 or bare int64 — so amounts
// round-trip exactly through JSON and SQL NUMERIC columns.
type Task struct {
	TaskID    string
	Requester *string
	SpecHash  *string

	PayoutAmount       *string
	MaxWinners         *int
	DepositFeeAmount   *string
	RecipientFeeAmount *string
	Balance            *string

	Deadline         *int64
	ReviewWindow     *int64
	EscalationWindow *int64

	ApprovedCount      int
	WithdrawnCount     int
	PendingSubmissions int
	SubmissionCount    int64
	ClaimCount         int64

	Status TaskStatus

	CreatedBlock int64
	CreatedTx    string
	UpdatedBlock int64
	UpdatedTx    string
}
