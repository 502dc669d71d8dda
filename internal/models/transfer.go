package models

// ContentGapLevel grades how much curriculum a transfer would skip.
type ContentGapLevel string

const (
	ContentGapNone  ContentGapLevel = "NONE"
	ContentGapMinor ContentGapLevel = "MINOR"
	ContentGapMajor ContentGapLevel = "MAJOR"
)

// GapSession is a course session covered by the target class but not the current one.
type GapSession struct {
	CourseSessionID string `json:"courseSessionId"`
	Sequence        int    `json:"sequence"`
	Topic           string `json:"topic"`
}

// ContentGap is the advisory result of comparing two classes' progress.
type ContentGap struct {
	Level          ContentGapLevel `json:"gapLevel"`
	MissedCount    int             `json:"missedCount"`
	GapSessions    []GapSession    `json:"gapSessions"`
	Recommendation string          `json:"recommendation"`
}

// TransferOption describes one candidate target class.
type TransferOption struct {
	ClassID        string       `json:"classId"`
	ClassCode      string       `json:"classCode"`
	ClassName      string       `json:"className"`
	BranchID       string       `json:"branchId"`
	Modality       Modality     `json:"modality"`
	Status         ClassStatus  `json:"status"`
	MaxCapacity    int          `json:"maxCapacity"`
	EnrolledCount  int          `json:"enrolledCount"`
	AvailableSlots int          `json:"availableSlots"`
	CanTransfer    bool         `json:"canTransfer"`
	Tier           TransferTier `json:"tier"`
	ContentGap     ContentGap   `json:"contentGap"`
}

// TransferEligibility summarises whether a student may request a transfer at all.
type TransferEligibility struct {
	StudentID   string            `json:"studentId"`
	Eligible    bool              `json:"eligible"`
	Reason      string            `json:"reason,omitempty"`
	Enrollments []EnrollmentQuota `json:"enrollments"`
}

// EnrollmentQuota is one active enrollment with its per-course transfer usage.
type EnrollmentQuota struct {
	EnrollmentID  string `json:"enrollmentId"`
	ClassID       string `json:"classId"`
	ClassCode     string `json:"classCode"`
	CourseID      string `json:"courseId"`
	TransfersUsed int    `json:"transfersUsed"`
	TransferQuota int    `json:"transferQuota"`
	CanTransfer   bool   `json:"canTransfer"`
}
