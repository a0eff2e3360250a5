package domain

// ServiceType is fixed when a selection is created.
type ServiceType string

const (
	ServiceIndividual ServiceType = "individual"
	ServiceGroup      ServiceType = "group"
)

func (s ServiceType) Valid() bool {
	return s == ServiceIndividual || s == ServiceGroup
}

// PlanState is the supervisor's verdict on the selection itself.
type PlanState string

const (
	PlanPending  PlanState = "pending"
	PlanAccepted PlanState = "accepted"
	PlanRejected PlanState = "rejected"
)

func (s PlanState) Valid() bool {
	switch s {
	case PlanPending, PlanAccepted, PlanRejected:
		return true
	}
	return false
}

// Conformity is the verdict on the uploaded plan document. A nil *Conformity
// means no document has been submitted for review.
type Conformity string

const (
	ConformityPending  Conformity = "pending"
	ConformityAccepted Conformity = "accepted"
	ConformityRejected Conformity = "rejected"
)

type TerminationState string

const (
	TerminationNotRequested TerminationState = "not_requested"
	TerminationRequested    TerminationState = "requested"
	TerminationApproved     TerminationState = "approved"
	TerminationRejected     TerminationState = "rejected"
)

type ReportState string

const (
	ReportPending  ReportState = "pending"
	ReportApproved ReportState = "approved"
	ReportRejected ReportState = "rejected"
)

func (s ReportState) Valid() bool {
	switch s {
	case ReportPending, ReportApproved, ReportRejected:
		return true
	}
	return false
}

type ActivityStatus string

const (
	ActivityApproved ActivityStatus = "approved"
	ActivityObserved ActivityStatus = "observed"
	ActivityPending  ActivityStatus = "pending"
)

func (s ActivityStatus) Valid() bool {
	switch s {
	case ActivityApproved, ActivityObserved, ActivityPending:
		return true
	}
	return false
}

type AttendanceStatus string

const (
	Attended    AttendanceStatus = "ATTENDED"
	NotAttended AttendanceStatus = "NOT_ATTENDED"
)

func (s AttendanceStatus) Valid() bool {
	return s == Attended || s == NotAttended
}

// DocumentKind names a generated or uploaded letter.
type DocumentKind string

const (
	DocAcceptanceLetter DocumentKind = "acceptance"
	DocCompletionLetter DocumentKind = "completion"
)

// MemberDocumentKind names a per-member document of a group selection.
type MemberDocumentKind string

const (
	MemberAcceptance  MemberDocumentKind = "acceptance"
	MemberCertificate MemberDocumentKind = "certificate"
)

func (k MemberDocumentKind) Valid() bool {
	return k == MemberAcceptance || k == MemberCertificate
}

type WorkSelection struct {
	ID                   int64            `json:"id"`
	OwnerID              int64            `json:"owner_id"`
	ProgramID            int64            `json:"program_id"`
	FacultyID            int64            `json:"faculty_id"`
	InstructorID         int64            `json:"instructor_id"`
	LaborID              int64            `json:"labor_id"`
	ActionLineID         int64            `json:"action_line_id"`
	ServiceType          ServiceType      `json:"service_type" enum:"individual,group"`
	PlanState            PlanState        `json:"plan_state" enum:"pending,accepted,rejected"`
	PlanConformity       *Conformity      `json:"plan_conformity" enum:"pending,accepted,rejected"`
	PlanFile             *string          `json:"plan_file,omitempty"`
	AcceptanceLetterFile *string          `json:"acceptance_letter_file,omitempty"`
	TerminationRequest   TerminationState `json:"termination_request" enum:"not_requested,requested,approved,rejected"`
	CompletionLetterFile *string          `json:"completion_letter_file,omitempty"`
	FinalReportFile      *string          `json:"final_report_file,omitempty"`
	FinalReportState     ReportState      `json:"final_report_state" enum:"pending,approved,rejected"`
	CertificateFile      *string          `json:"certificate_file,omitempty"`
	Members              []GroupMember    `json:"members,omitempty"`
	CreatedAt            string           `json:"created_at" format:"date-time"`
	UpdatedAt            string           `json:"updated_at" format:"date-time"`
}

// Finished reports whether the certificate is issued on an approved report.
func (w WorkSelection) Finished() bool {
	return w.CertificateFile != nil && w.FinalReportState == ReportApproved
}

func (w WorkSelection) ConformityValue() string {
	if w.PlanConformity == nil {
		return "null"
	}
	return string(*w.PlanConformity)
}

type GroupMember struct {
	ID        int64            `json:"id"`
	WorkID    int64            `json:"work_id"`
	Email     string           `json:"email" format:"email"`
	Status    AttendanceStatus `json:"status" enum:"ATTENDED,NOT_ATTENDED"`
	CreatedAt string           `json:"created_at" format:"date-time"`
}

// Code is the institutional code carried in the email local part.
func (m GroupMember) Code() string {
	for i := 0; i < len(m.Email); i++ {
		if m.Email[i] == '@' {
			return m.Email[:i]
		}
	}
	return m.Email
}

type ScheduledActivity struct {
	ID             int64           `json:"id"`
	WorkID         int64           `json:"work_id"`
	Ordinal        int             `json:"ordinal"`
	Description    string          `json:"description"`
	Justification  string          `json:"justification,omitempty"`
	StartDate      string          `json:"start_date" format:"date"`
	PlannedEndDate string          `json:"planned_end_date" format:"date"`
	CompletedOn    *string         `json:"completed_on,omitempty" format:"date"`
	Results        string          `json:"results,omitempty"`
	Observation    *string         `json:"observation,omitempty"`
	EvidenceFile   *string         `json:"evidence_file,omitempty"`
	Status         *ActivityStatus `json:"status,omitempty" enum:"approved,observed,pending"`
}

type Observation struct {
	ID        int64   `json:"id"`
	WorkID    int64   `json:"work_id"`
	AuthorID  *string `json:"author_id,omitempty"`
	Category  string  `json:"category"`
	Body      string  `json:"body"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type MemberDocument struct {
	ID        int64              `json:"id"`
	WorkID    int64              `json:"work_id"`
	Kind      MemberDocumentKind `json:"kind" enum:"acceptance,certificate"`
	Code      string             `json:"code"`
	File      string             `json:"file"`
	CreatedAt string             `json:"created_at" format:"date-time"`
}

// Identity is the academic record returned by the external directory.
type Identity struct {
	Code     string `json:"code"`
	FullName string `json:"full_name"`
	Faculty  string `json:"faculty"`
	Program  string `json:"program"`
}

// EnrichedMember pairs a stored member with its directory identity. Identity
// is nil and Diagnostic set when the lookup did not succeed.
type EnrichedMember struct {
	GroupMember
	Code       string    `json:"code"`
	Identity   *Identity `json:"identity"`
	Diagnostic string    `json:"diagnostic,omitempty"`
}

// Actor is the authenticated caller handed down by the role guard.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// LetterData feeds the document renderer.
type LetterData struct {
	WorkID       int64       `json:"work_id"`
	OwnerID      int64       `json:"owner_id"`
	ProgramID    int64       `json:"program_id"`
	FacultyID    int64       `json:"faculty_id"`
	InstructorID int64       `json:"instructor_id"`
	LaborID      int64       `json:"labor_id"`
	ServiceType  ServiceType `json:"service_type"`
	Members      []string    `json:"members,omitempty"`
	Institution  string      `json:"institution"`
	IssuedOn     string      `json:"issued_on"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	WorkID     int64  `json:"work_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload"`
}
