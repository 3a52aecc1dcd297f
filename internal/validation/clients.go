package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/hyperengineering/caseload/internal/types"
)

var (
	phonePattern  = regexp.MustCompile(`^[\d\s\-\(\)\+]*$`)
	postalPattern = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
)

var (
	fundingSources = []types.FundingSource{
		types.FundingInsurance,
		types.FundingRegionalCenter,
		types.FundingSchoolDistrict,
		types.FundingPrivatePay,
		types.FundingMedicaidWaiver,
	}
	relationships = []types.GuardianRelationship{
		types.RelationshipMother,
		types.RelationshipFather,
		types.RelationshipStepmother,
		types.RelationshipStepfather,
		types.RelationshipGuardian,
		types.RelationshipGrandparent,
		types.RelationshipOther,
	}
	insuranceTypes = []types.InsuranceType{
		types.InsuranceCommercial,
		types.InsuranceMedicaid,
		types.InsuranceManagedMedicaid,
		types.InsuranceTricare,
	}
	insuranceStatuses = []types.InsuranceStatus{
		types.InsuranceActive,
		types.InsuranceInactive,
		types.InsurancePendingVerification,
	}
	payorTypes = []types.PayorType{
		types.PayorInsurance,
		types.PayorRegionalCenter,
		types.PayorSchoolDistrict,
		types.PayorPrivatePay,
	}
	authStatuses = []types.AuthStatus{
		types.AuthPending,
		types.AuthSubmitted,
		types.AuthApproved,
		types.AuthDenied,
		types.AuthExpired,
		types.AuthExhausted,
	}
	taskStatuses = []types.TaskStatus{types.TaskPending, types.TaskCompleted}
)

// ValidatePhone returns an error if value contains characters other than digits,
// spaces, parentheses, dashes, and plus. Empty is allowed.
func ValidatePhone(field, value string) *ValidationError {
	if !phonePattern.MatchString(value) {
		return &ValidationError{Field: field, Message: "must be a valid phone number"}
	}
	return nil
}

// ValidateEmail returns an error if a non-empty value is not a bare address.
func ValidateEmail(field, value string) *ValidationError {
	if value == "" {
		return nil
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return &ValidationError{Field: field, Message: "must be a valid email"}
	}
	return nil
}

// ValidatePostalCode accepts US ZIP and ZIP+4. Empty is allowed.
func ValidatePostalCode(field, value string) *ValidationError {
	if value != "" && !postalPattern.MatchString(value) {
		return &ValidationError{Field: field, Message: "must be a valid ZIP code"}
	}
	return nil
}

// ValidateDate accepts YYYY-MM-DD. Empty is allowed.
func ValidateDate(field, value string) *ValidationError {
	if value == "" {
		return nil
	}
	if _, err := time.Parse(time.DateOnly, value); err != nil {
		return &ValidationError{Field: field, Message: "must be a date in YYYY-MM-DD format"}
	}
	return nil
}

// ValidateStatus rejects anything but a known client status, including empty.
func ValidateStatus(field string, status types.ClientStatus) *ValidationError {
	if status == "" {
		return fail(field, "is required")
	}
	return ValidateOneOf(field, status, types.ClientStatuses)
}

// text runs the checks every free-text field gets.
func text(c *Collector, field, value string, max int) {
	c.Add(ValidateText(field, value, max))
}

// ValidateClientFields validates the scalar fields of a client.
// An empty status is accepted and defaults to inquiry on create.
func ValidateClientFields(f types.ClientFields) []ValidationError {
	c := NewCollector("")

	if f.Status != "" {
		c.Add(ValidateStatus("status", f.Status))
	}
	c.Add(ValidateOneOf("funding_source", f.FundingSource, fundingSources))

	text(c, "referral_source", f.ReferralSource, 100)
	text(c, "discharge_reason", f.DischargeReason, 500)
	text(c, "preferred_language", f.PreferredLanguage, 50)
	text(c, "child_first_name", f.ChildFirstName, 100)
	text(c, "child_last_name", f.ChildLastName, 100)
	text(c, "child_primary_concerns", f.ChildPrimaryConcerns, 5000)
	text(c, "child_aba_history", f.ChildABAHistory, 5000)
	text(c, "child_school_name", f.ChildSchoolName, 200)
	text(c, "child_school_district", f.ChildSchoolDistrict, 200)
	text(c, "child_grade_level", f.ChildGradeLevel, 50)
	text(c, "child_other_therapies", f.ChildOtherTherapies, 2000)
	text(c, "child_pediatrician_name", f.ChildPediatricianName, 200)
	text(c, "notes", f.Notes, 10000)
	c.Add(ValidatePhone("child_pediatrician_phone", f.ChildPediatricianPhone))

	c.Add(ValidateDate("referral_date", f.ReferralDate))
	c.Add(ValidateDate("service_start_date", f.ServiceStartDate))
	c.Add(ValidateDate("service_end_date", f.ServiceEndDate))
	c.Add(ValidateDate("child_date_of_birth", f.ChildDateOfBirth))

	if f.InquiryID != "" {
		c.Add(ValidateID("inquiry_id", f.InquiryID))
	}
	for i, d := range f.ChildDiagnosis {
		text(c, fmt.Sprintf("child_diagnosis[%d]", i), d, 100)
	}

	return c.Errors()
}

// ValidateGuardian validates one guardian; prefix is prepended to field names.
func ValidateGuardian(prefix string, g types.Guardian) []ValidationError {
	c := NewCollector(prefix)
	text(c, "first_name", g.FirstName, 100)
	text(c, "last_name", g.LastName, 100)
	text(c, "notes", g.Notes, 2000)
	c.Add(ValidateOneOf("relationship", g.Relationship, relationships))
	c.Add(ValidatePhone("phone", g.Phone))
	c.Add(ValidateEmail("email", g.Email))
	return c.Errors()
}

// ValidateLocation validates one location; prefix is prepended to field names.
func ValidateLocation(prefix string, l types.Location) []ValidationError {
	c := NewCollector(prefix)
	text(c, "label", l.Label, 100)
	text(c, "street_address", l.StreetAddress, 255)
	text(c, "city", l.City, 100)
	text(c, "state", l.State, 2)
	text(c, "notes", l.Notes, 2000)
	c.Add(ValidatePostalCode("postal_code", l.PostalCode))
	if l.Latitude != nil {
		c.Add(ValidateRange("latitude", *l.Latitude, -90, 90))
	}
	if l.Longitude != nil {
		c.Add(ValidateRange("longitude", *l.Longitude, -180, 180))
	}
	return c.Errors()
}

// ValidateInsurance validates one policy; prefix is prepended to field names.
func ValidateInsurance(prefix string, i types.Insurance) []ValidationError {
	c := NewCollector(prefix)
	text(c, "insurance_name", i.InsuranceName, 200)
	text(c, "member_id", i.MemberID, 100)
	text(c, "group_number", i.GroupNumber, 100)
	c.Add(ValidateOneOf("insurance_type", i.InsuranceType, insuranceTypes))
	c.Add(ValidateOneOf("status", i.Status, insuranceStatuses))
	return c.Errors()
}

// ValidateChild dispatches to the validator for the child's kind.
func ValidateChild(prefix string, child types.Child) []ValidationError {
	switch v := child.(type) {
	case types.Guardian:
		return ValidateGuardian(prefix, v)
	case types.Location:
		return ValidateLocation(prefix, v)
	case types.Insurance:
		return ValidateInsurance(prefix, v)
	}
	return []ValidationError{{Field: strings.TrimSuffix(prefix, "."), Message: "is not a known record type"}}
}

// ValidateComposite validates the scalar fields and every meaningful child row.
// Rows that would be skipped on save are not validated.
func ValidateComposite(form types.Composite) []ValidationError {
	errs := ValidateClientFields(form.ClientFields)
	for _, kind := range types.ChildKinds {
		for i, child := range form.Children(kind) {
			if !child.Meaningful() {
				continue
			}
			errs = append(errs, ValidateChild(fmt.Sprintf("%s[%d].", kind, i), child)...)
		}
	}
	return errs
}

func nonNegative(c *Collector, field string, n *int) {
	if n != nil && *n < 0 {
		c.Add(fail(field, "must not be negative"))
	}
}

// ValidateAuthorization validates a service authorization.
func ValidateAuthorization(a types.Authorization) []ValidationError {
	c := NewCollector("")
	if a.InsuranceID != "" {
		c.Add(ValidateID("insurance_id", a.InsuranceID))
	}
	c.Add(ValidateOneOf("payor_type", a.PayorType, payorTypes))
	c.Add(ValidateOneOf("status", a.Status, authStatuses))
	text(c, "service_type", a.ServiceType, 100)
	text(c, "billing_code", a.BillingCode, 20)
	text(c, "treatment_requested", a.TreatmentRequested, 500)
	text(c, "auth_reference_number", a.AuthReferenceNumber, 100)
	text(c, "notes", a.Notes, 2000)
	nonNegative(c, "units_requested", a.UnitsRequested)
	nonNegative(c, "units_used", &a.UnitsUsed)
	nonNegative(c, "units_per_week_authorized", a.UnitsPerWeekAuthorized)
	if a.RatePerUnit != nil && *a.RatePerUnit < 0 {
		c.Add(fail("rate_per_unit", "must not be negative"))
	}
	c.Add(ValidateDate("start_date", a.StartDate))
	c.Add(ValidateDate("end_date", a.EndDate))
	if a.StartDate != "" && a.EndDate != "" && a.EndDate < a.StartDate {
		c.Add(fail("end_date", "must not be before start_date"))
	}
	return c.Errors()
}

// ValidateTaskStatus rejects anything but pending or completed. Empty passes.
func ValidateTaskStatus(field string, status types.TaskStatus) *ValidationError {
	return ValidateOneOf(field, status, taskStatuses)
}

// ValidateTask validates a task. The title is the only required field.
func ValidateTask(t types.Task) []ValidationError {
	c := NewCollector("")
	c.Add(ValidateRequired("title", t.Title))
	text(c, "title", t.Title, 200)
	text(c, "content", t.Content, 10000)
	if t.ClientID != "" {
		c.Add(ValidateID("client_id", t.ClientID))
	}
	c.Add(ValidateTaskStatus("status", t.Status))
	c.Add(ValidateDate("due_date", t.DueDate))
	if t.ReminderAt != "" {
		if _, err := time.Parse(time.RFC3339, t.ReminderAt); err != nil {
			c.Add(fail("reminder_at", "must be an RFC 3339 timestamp"))
		}
	}
	return c.Errors()
}
