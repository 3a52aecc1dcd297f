package types

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// ClientStatus represents the intake/treatment stage of a client
type ClientStatus string

const (
	StatusInquiry       ClientStatus = "inquiry"
	StatusIntakePending ClientStatus = "intake_pending"
	StatusWaitlist      ClientStatus = "waitlist"
	StatusAssessment    ClientStatus = "assessment"
	StatusActive        ClientStatus = "active"
	StatusOnHold        ClientStatus = "on_hold"
	StatusDischarged    ClientStatus = "discharged"
)

// ClientStatuses lists every status in pipeline order.
var ClientStatuses = []ClientStatus{
	StatusInquiry,
	StatusIntakePending,
	StatusWaitlist,
	StatusAssessment,
	StatusActive,
	StatusOnHold,
	StatusDischarged,
}

// Valid reports whether s is a known status.
func (s ClientStatus) Valid() bool {
	for _, v := range ClientStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// FundingSource represents how a client's services are paid for
type FundingSource string

const (
	FundingInsurance      FundingSource = "insurance"
	FundingRegionalCenter FundingSource = "regional_center"
	FundingSchoolDistrict FundingSource = "school_district"
	FundingPrivatePay     FundingSource = "private_pay"
	FundingMedicaidWaiver FundingSource = "medicaid_waiver"
)

// GuardianRelationship is the guardian's relationship to the child
type GuardianRelationship string

const (
	RelationshipMother      GuardianRelationship = "mother"
	RelationshipFather      GuardianRelationship = "father"
	RelationshipStepmother  GuardianRelationship = "stepmother"
	RelationshipStepfather  GuardianRelationship = "stepfather"
	RelationshipGuardian    GuardianRelationship = "guardian"
	RelationshipGrandparent GuardianRelationship = "grandparent"
	RelationshipOther       GuardianRelationship = "other"
)

// InsuranceType classifies an insurance policy
type InsuranceType string

const (
	InsuranceCommercial      InsuranceType = "commercial"
	InsuranceMedicaid        InsuranceType = "medicaid"
	InsuranceManagedMedicaid InsuranceType = "managed_medicaid"
	InsuranceTricare         InsuranceType = "tricare"
)

// InsuranceStatus is the verification state of a policy
type InsuranceStatus string

const (
	InsuranceActive              InsuranceStatus = "active"
	InsuranceInactive            InsuranceStatus = "inactive"
	InsurancePendingVerification InsuranceStatus = "pending_verification"
)

// PayorType is who an authorization is requested from
type PayorType string

const (
	PayorInsurance      PayorType = "insurance"
	PayorRegionalCenter PayorType = "regional_center"
	PayorSchoolDistrict PayorType = "school_district"
	PayorPrivatePay     PayorType = "private_pay"
)

// AuthStatus is the lifecycle stage of a service authorization
type AuthStatus string

const (
	AuthPending   AuthStatus = "pending"
	AuthSubmitted AuthStatus = "submitted"
	AuthApproved  AuthStatus = "approved"
	AuthDenied    AuthStatus = "denied"
	AuthExpired   AuthStatus = "expired"
	AuthExhausted AuthStatus = "exhausted"
)

// TaskStatus is either pending or completed
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
)

// ClientFields holds the scalar attributes of a client that callers may write.
type ClientFields struct {
	Status                 ClientStatus  `json:"status,omitempty" yaml:"status"`
	InquiryID              string        `json:"inquiry_id,omitempty" yaml:"inquiry_id"`
	ReferralSource         string        `json:"referral_source,omitempty" yaml:"referral_source"`
	ReferralDate           string        `json:"referral_date,omitempty" yaml:"referral_date"`
	ServiceStartDate       string        `json:"service_start_date,omitempty" yaml:"service_start_date"`
	ServiceEndDate         string        `json:"service_end_date,omitempty" yaml:"service_end_date"`
	DischargeReason        string        `json:"discharge_reason,omitempty" yaml:"discharge_reason"`
	FundingSource          FundingSource `json:"funding_source,omitempty" yaml:"funding_source"`
	PreferredLanguage      string        `json:"preferred_language,omitempty" yaml:"preferred_language"`
	ChildFirstName         string        `json:"child_first_name,omitempty" yaml:"child_first_name"`
	ChildLastName          string        `json:"child_last_name,omitempty" yaml:"child_last_name"`
	ChildDateOfBirth       string        `json:"child_date_of_birth,omitempty" yaml:"child_date_of_birth"`
	ChildDiagnosis         []string      `json:"child_diagnosis,omitempty" yaml:"child_diagnosis"`
	ChildPrimaryConcerns   string        `json:"child_primary_concerns,omitempty" yaml:"child_primary_concerns"`
	ChildABAHistory        string        `json:"child_aba_history,omitempty" yaml:"child_aba_history"`
	ChildSchoolName        string        `json:"child_school_name,omitempty" yaml:"child_school_name"`
	ChildSchoolDistrict    string        `json:"child_school_district,omitempty" yaml:"child_school_district"`
	ChildGradeLevel        string        `json:"child_grade_level,omitempty" yaml:"child_grade_level"`
	ChildOtherTherapies    string        `json:"child_other_therapies,omitempty" yaml:"child_other_therapies"`
	ChildPediatricianName  string        `json:"child_pediatrician_name,omitempty" yaml:"child_pediatrician_name"`
	ChildPediatricianPhone string        `json:"child_pediatrician_phone,omitempty" yaml:"child_pediatrician_phone"`
	Notes                  string        `json:"notes,omitempty" yaml:"notes"`
}

// DisplayName returns the child's name, or "Unnamed Client" when neither part is set.
func (f ClientFields) DisplayName() string {
	return displayName(f.ChildFirstName, f.ChildLastName)
}

func displayName(first, last string) string {
	first = strings.TrimSpace(first)
	last = strings.TrimSpace(last)
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	case last != "":
		return last
	}
	return "Unnamed Client"
}

// Client is a persisted client record without its child collections.
type Client struct {
	ID string `json:"id"`
	ClientFields
	ConvertedFromInquiry bool       `json:"converted_from_inquiry,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	DeletedAt            *time.Time `json:"deleted_at,omitempty"`
}

// ClientDetail is a client with all child collections. Form collections are
// sorted by sort order, authorizations and tasks by creation time.
type ClientDetail struct {
	Client
	Guardians      []Guardian      `json:"guardians"`
	Locations      []Location      `json:"locations"`
	Insurances     []Insurance     `json:"insurances"`
	Authorizations []Authorization `json:"authorizations"`
	Tasks          []Task          `json:"tasks"`
}

// MarshalJSON ensures nil child slices marshal as [] not null.
func (d ClientDetail) MarshalJSON() ([]byte, error) {
	if d.Guardians == nil {
		d.Guardians = []Guardian{}
	}
	if d.Locations == nil {
		d.Locations = []Location{}
	}
	if d.Insurances == nil {
		d.Insurances = []Insurance{}
	}
	if d.Authorizations == nil {
		d.Authorizations = []Authorization{}
	}
	if d.Tasks == nil {
		d.Tasks = []Task{}
	}
	type Alias ClientDetail
	return json.Marshal(Alias(d))
}

// ChildKind names one of the three child collections of a client.
type ChildKind string

const (
	KindGuardian  ChildKind = "guardians"
	KindLocation  ChildKind = "locations"
	KindInsurance ChildKind = "insurances"
)

// ChildKinds lists the collections in the order they appear on the form.
var ChildKinds = []ChildKind{KindGuardian, KindLocation, KindInsurance}

// Valid reports whether k is a known collection.
func (k ChildKind) Valid() bool {
	return k == KindGuardian || k == KindLocation || k == KindInsurance
}

// Child is the shape shared by all child records.
type Child interface {
	Kind() ChildKind
	// ChildID is the server identifier, empty if the record was never saved.
	ChildID() string
	// Meaningful reports whether at least one identifying field is set.
	Meaningful() bool
}

// Guardian is a parent or legal guardian of the child.
type Guardian struct {
	ID           string               `json:"id,omitempty" yaml:"id"`
	ClientID     string               `json:"client_id,omitempty" yaml:"-"`
	FirstName    string               `json:"first_name,omitempty" yaml:"first_name"`
	LastName     string               `json:"last_name,omitempty" yaml:"last_name"`
	Relationship GuardianRelationship `json:"relationship,omitempty" yaml:"relationship"`
	Phone        string               `json:"phone,omitempty" yaml:"phone"`
	Email        string               `json:"email,omitempty" yaml:"email"`
	Notes        string               `json:"notes,omitempty" yaml:"notes"`
	IsPrimary    bool                 `json:"is_primary" yaml:"is_primary"`
	SortOrder    int                  `json:"sort_order" yaml:"sort_order"`
	CreatedAt    time.Time            `json:"created_at,omitempty" yaml:"-"`
}

func (g Guardian) Kind() ChildKind { return KindGuardian }
func (g Guardian) ChildID() string { return g.ID }

func (g Guardian) Meaningful() bool {
	return anySet(g.FirstName, g.LastName, g.Phone, g.Email)
}

// Name joins first and last name, skipping empty parts.
func (g Guardian) Name() string {
	return strings.TrimSpace(strings.Join([]string{g.FirstName, g.LastName}, " "))
}

// Location is a place where services are delivered.
type Location struct {
	ID            string    `json:"id,omitempty" yaml:"id"`
	ClientID      string    `json:"client_id,omitempty" yaml:"-"`
	Label         string    `json:"label,omitempty" yaml:"label"`
	StreetAddress string    `json:"street_address,omitempty" yaml:"street_address"`
	City          string    `json:"city,omitempty" yaml:"city"`
	State         string    `json:"state,omitempty" yaml:"state"`
	PostalCode    string    `json:"postal_code,omitempty" yaml:"postal_code"`
	Latitude      *float64  `json:"latitude,omitempty" yaml:"latitude"`
	Longitude     *float64  `json:"longitude,omitempty" yaml:"longitude"`
	PlaceID       string    `json:"place_id,omitempty" yaml:"place_id"`
	Notes         string    `json:"notes,omitempty" yaml:"notes"`
	IsPrimary     bool      `json:"is_primary" yaml:"is_primary"`
	SortOrder     int       `json:"sort_order" yaml:"sort_order"`
	CreatedAt     time.Time `json:"created_at,omitempty" yaml:"-"`
}

func (l Location) Kind() ChildKind { return KindLocation }
func (l Location) ChildID() string { return l.ID }

func (l Location) Meaningful() bool {
	return anySet(l.StreetAddress, l.City)
}

// Insurance is an insurance policy covering the child.
type Insurance struct {
	ID            string          `json:"id,omitempty" yaml:"id"`
	ClientID      string          `json:"client_id,omitempty" yaml:"-"`
	InsuranceName string          `json:"insurance_name,omitempty" yaml:"insurance_name"`
	InsuranceType InsuranceType   `json:"insurance_type,omitempty" yaml:"insurance_type"`
	MemberID      string          `json:"member_id,omitempty" yaml:"member_id"`
	GroupNumber   string          `json:"group_number,omitempty" yaml:"group_number"`
	Status        InsuranceStatus `json:"status,omitempty" yaml:"status"`
	IsPrimary     bool            `json:"is_primary" yaml:"is_primary"`
	SortOrder     int             `json:"sort_order" yaml:"sort_order"`
	CreatedAt     time.Time       `json:"created_at,omitempty" yaml:"-"`
}

func (i Insurance) Kind() ChildKind { return KindInsurance }
func (i Insurance) ChildID() string { return i.ID }

func (i Insurance) Meaningful() bool {
	return anySet(i.InsuranceName, i.MemberID)
}

// WithChildID returns a copy of child carrying id.
func WithChildID(child Child, id string) Child {
	switch c := child.(type) {
	case Guardian:
		c.ID = id
		return c
	case Location:
		c.ID = id
		return c
	case Insurance:
		c.ID = id
		return c
	}
	return child
}

// anySet reports whether any value is non-empty. Whitespace counts as set.
func anySet(values ...string) bool {
	for _, v := range values {
		if v != "" {
			return true
		}
	}
	return false
}

// Authorization is a payor's approval of service units for the client.
type Authorization struct {
	ID                     string     `json:"id,omitempty"`
	ClientID               string     `json:"client_id,omitempty"`
	InsuranceID            string     `json:"insurance_id,omitempty"`
	PayorType              PayorType  `json:"payor_type,omitempty"`
	ServiceType            string     `json:"service_type,omitempty"`
	BillingCode            string     `json:"billing_code,omitempty"`
	TreatmentRequested     string     `json:"treatment_requested,omitempty"`
	UnitsRequested         *int       `json:"units_requested,omitempty"`
	UnitsUsed              int        `json:"units_used"`
	UnitsPerWeekAuthorized *int       `json:"units_per_week_authorized,omitempty"`
	RatePerUnit            *float64   `json:"rate_per_unit,omitempty"`
	StartDate              string     `json:"start_date,omitempty"`
	EndDate                string     `json:"end_date,omitempty"`
	Status                 AuthStatus `json:"status,omitempty"`
	AuthReferenceNumber    string     `json:"auth_reference_number,omitempty"`
	RequiresPriorAuth      bool       `json:"requires_prior_auth"`
	Notes                  string     `json:"notes,omitempty"`
	CreatedAt              time.Time  `json:"created_at,omitempty"`
}

// UnitsRemaining is requested minus used. ok is false when no units were requested.
func (a Authorization) UnitsRemaining() (remaining int, ok bool) {
	if a.UnitsRequested == nil {
		return 0, false
	}
	return *a.UnitsRequested - a.UnitsUsed, true
}

// DaysUntilExpiry counts calendar days from today to EndDate, negative once
// it has passed. ok is false when EndDate is unset or unparseable.
func (a Authorization) DaysUntilExpiry(today time.Time) (days int, ok bool) {
	if a.EndDate == "" {
		return 0, false
	}
	end, err := time.ParseInLocation(time.DateOnly, a.EndDate, today.Location())
	if err != nil {
		return 0, false
	}
	y, m, d := today.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, today.Location())
	return int(math.Round(end.Sub(start).Hours() / 24)), true
}

// Task is a to-do item, attached to a client or standing alone.
type Task struct {
	ID          string     `json:"id,omitempty"`
	ClientID    string     `json:"client_id,omitempty"`
	Title       string     `json:"title"`
	Content     string     `json:"content,omitempty"`
	Status      TaskStatus `json:"status,omitempty"`
	DueDate     string     `json:"due_date,omitempty"`
	ReminderAt  string     `json:"reminder_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at,omitempty"`

	// ClientName is filled on listings from the owning client's child name.
	ClientName string `json:"client_name,omitempty"`
}

// TaskFilter narrows a task listing. Zero values match everything.
type TaskFilter struct {
	Status   TaskStatus
	ClientID string
}

// TaskList is the response of a task listing.
type TaskList struct {
	Tasks []Task `json:"tasks"`
}

// MarshalJSON ensures nil slices in TaskList marshal as [] not null.
func (l TaskList) MarshalJSON() ([]byte, error) {
	if l.Tasks == nil {
		l.Tasks = []Task{}
	}
	type Alias TaskList
	return json.Marshal(Alias(l))
}

// Composite is the whole client form: the scalar fields plus every child row,
// including rows the user added but never filled in.
type Composite struct {
	ClientFields `yaml:",inline"`
	Guardians    []Guardian  `json:"guardians,omitempty" yaml:"guardians"`
	Locations    []Location  `json:"locations,omitempty" yaml:"locations"`
	Insurances   []Insurance `json:"insurances,omitempty" yaml:"insurances"`
}

// Children returns the rows of one collection as Child values, in form order.
func (c Composite) Children(kind ChildKind) []Child {
	var out []Child
	switch kind {
	case KindGuardian:
		for _, g := range c.Guardians {
			out = append(out, g)
		}
	case KindLocation:
		for _, l := range c.Locations {
			out = append(out, l)
		}
	case KindInsurance:
		for _, i := range c.Insurances {
			out = append(out, i)
		}
	}
	return out
}

// ClientListItem is a client summarized for table display.
type ClientListItem struct {
	ID                       string       `json:"id"`
	Status                   ClientStatus `json:"status"`
	ChildFirstName           string       `json:"child_first_name,omitempty"`
	ChildLastName            string       `json:"child_last_name,omitempty"`
	ChildDateOfBirth         string       `json:"child_date_of_birth,omitempty"`
	CreatedAt                time.Time    `json:"created_at"`
	UpdatedAt                time.Time    `json:"updated_at"`
	PrimaryGuardianName      string       `json:"primary_parent_name,omitempty"`
	PrimaryGuardianPhone     string       `json:"primary_parent_phone,omitempty"`
	PrimaryGuardianEmail     string       `json:"primary_parent_email,omitempty"`
	PrimaryInsuranceName     string       `json:"primary_insurance_name,omitempty"`
	PrimaryInsuranceMemberID string       `json:"primary_insurance_member_id,omitempty"`
}

// ChildName is the space-joined child name, empty when no part is set.
func (i ClientListItem) ChildName() string {
	return strings.TrimSpace(strings.Join([]string{i.ChildFirstName, i.ChildLastName}, " "))
}

// DisplayName mirrors ClientFields.DisplayName for list rows.
func (i ClientListItem) DisplayName() string {
	return displayName(i.ChildFirstName, i.ChildLastName)
}

// ClientCounts holds the number of live clients overall and per status.
type ClientCounts struct {
	Total    int                  `json:"total"`
	ByStatus map[ClientStatus]int `json:"by_status"`
}

// NewClientCounts returns counts with every status present at zero.
func NewClientCounts() ClientCounts {
	c := ClientCounts{ByStatus: make(map[ClientStatus]int, len(ClientStatuses))}
	for _, s := range ClientStatuses {
		c.ByStatus[s] = 0
	}
	return c
}

// Clone returns a deep copy.
func (c ClientCounts) Clone() ClientCounts {
	out := ClientCounts{Total: c.Total, ByStatus: make(map[ClientStatus]int, len(c.ByStatus))}
	for k, v := range c.ByStatus {
		out.ByStatus[k] = v
	}
	return out
}

// MarshalJSON ensures a nil status map marshals as {} not null.
func (c ClientCounts) MarshalJSON() ([]byte, error) {
	if c.ByStatus == nil {
		c.ByStatus = map[ClientStatus]int{}
	}
	type Alias ClientCounts
	return json.Marshal(Alias(c))
}

// ListFilter narrows a client listing.
type ListFilter struct {
	Statuses []ClientStatus
	Search   string
	Page     int
	PageSize int
}

// ClientList is one page of clients plus the unfiltered counts.
type ClientList struct {
	Clients []ClientListItem `json:"clients"`
	Counts  ClientCounts     `json:"counts"`
	Total   int              `json:"total"`
}

// MarshalJSON ensures nil slices in ClientList marshal as [] not null.
func (l ClientList) MarshalJSON() ([]byte, error) {
	if l.Clients == nil {
		l.Clients = []ClientListItem{}
	}
	type Alias ClientList
	return json.Marshal(Alias(l))
}

// CreatedResponse is returned by every create endpoint
type CreatedResponse struct {
	ID string `json:"id"`
}

// StatusRequest is the body of a status change
type StatusRequest struct {
	Status ClientStatus `json:"status"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status       string     `json:"status"`
	Version      string     `json:"version"`
	ClientCount  int64      `json:"client_count"`
	LastSnapshot *time.Time `json:"last_snapshot,omitempty"`
}

// StoreStats holds aggregate store statistics.
type StoreStats struct {
	ClientCount  int64      `json:"client_count"`
	DeletedCount int64      `json:"deleted_count"`
	LastSnapshot *time.Time `json:"last_snapshot,omitempty"`
}
