package models

// RequestStatus is the lifecycle vocabulary shared by student and teacher requests.
type RequestStatus string

const (
	RequestStatusPending        RequestStatus = "PENDING"
	RequestStatusWaitingConfirm RequestStatus = "WAITING_CONFIRM"
	RequestStatusApproved       RequestStatus = "APPROVED"
	RequestStatusRejected       RequestStatus = "REJECTED"
	RequestStatusCancelled      RequestStatus = "CANCELLED"
)

// Open reports whether the status still awaits a decision.
func (s RequestStatus) Open() bool {
	return s == RequestStatusPending || s == RequestStatusWaitingConfirm
}

// RequestEvent names the operation driving a status change.
type RequestEvent string

const (
	EventApprove     RequestEvent = "APPROVE"
	EventReject      RequestEvent = "REJECT"
	EventCancel      RequestEvent = "CANCEL"
	EventAssignSwap  RequestEvent = "ASSIGN_REPLACEMENT"
	EventConfirmSwap RequestEvent = "CONFIRM_SWAP"
	EventDeclineSwap RequestEvent = "DECLINE_SWAP"
)

// RequestKind distinguishes the two workflows sharing the status vocabulary.
type RequestKind string

const (
	RequestKindStudent RequestKind = "STUDENT"
	RequestKindTeacher RequestKind = "TEACHER"
)

// Transition is one allowed edge of a request state machine.
type Transition struct {
	Kind  RequestKind
	From  RequestStatus
	To    RequestStatus
	Event RequestEvent
}

var transitionTable = []Transition{
	{Kind: RequestKindStudent, From: RequestStatusPending, To: RequestStatusApproved, Event: EventApprove},
	{Kind: RequestKindStudent, From: RequestStatusPending, To: RequestStatusRejected, Event: EventReject},
	{Kind: RequestKindStudent, From: RequestStatusPending, To: RequestStatusCancelled, Event: EventCancel},

	{Kind: RequestKindTeacher, From: RequestStatusPending, To: RequestStatusApproved, Event: EventApprove},
	{Kind: RequestKindTeacher, From: RequestStatusPending, To: RequestStatusRejected, Event: EventReject},
	{Kind: RequestKindTeacher, From: RequestStatusPending, To: RequestStatusWaitingConfirm, Event: EventAssignSwap},
	{Kind: RequestKindTeacher, From: RequestStatusWaitingConfirm, To: RequestStatusApproved, Event: EventConfirmSwap},
	{Kind: RequestKindTeacher, From: RequestStatusWaitingConfirm, To: RequestStatusPending, Event: EventDeclineSwap},
}

// CanTransition reports whether event may move a request of kind from one status to another.
func CanTransition(kind RequestKind, from, to RequestStatus, event RequestEvent) bool {
	for _, t := range transitionTable {
		if t.Kind == kind && t.From == from && t.To == to && t.Event == event {
			return true
		}
	}
	return false
}

// TargetStatus returns the status event leads to from the given status, if any edge exists.
func TargetStatus(kind RequestKind, from RequestStatus, event RequestEvent) (RequestStatus, bool) {
	for _, t := range transitionTable {
		if t.Kind == kind && t.From == from && t.Event == event {
			return t.To, true
		}
	}
	return "", false
}
