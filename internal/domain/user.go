package domain

import (
	"strings"
	"time"
)

// DistributionStatus tracks the payout state of one revenue channel for a student.
type DistributionStatus string

const (
	DistributionPending   DistributionStatus = "PENDING"
	DistributionInProcess DistributionStatus = "IN_PROCESS"
	DistributionPaid      DistributionStatus = "PAID"
)

// Valid reports whether s is a known distribution status.
func (s DistributionStatus) Valid() bool {
	return s == DistributionPending || s == DistributionInProcess || s == DistributionPaid
}

// Distribution is the payout state of the three revenue channels for one student.
type Distribution struct {
	UFLP           DistributionStatus `json:"uflp"`
	UFLPDate       *time.Time         `json:"uflp_date"`
	ECOA           DistributionStatus `json:"ecoa"`
	ECOADate       *time.Time         `json:"ecoa_date"`
	Commission     DistributionStatus `json:"commission"`
	CommissionDate *time.Time         `json:"commission_date"`
}

// Profile holds the personal data a student fills in before uploading documents.
type Profile struct {
	FirstName         *string    `db:"first_name" json:"first_name"`
	LastNamePaterno   *string    `db:"last_name_paterno" json:"last_name_paterno"`
	LastNameMaterno   *string    `db:"last_name_materno" json:"last_name_materno"`
	DOB               *time.Time `db:"dob" json:"dob"`
	Sex               *string    `db:"sex" json:"sex"`
	Age               *int       `db:"age" json:"age"`
	BirthPlace        *string    `db:"birth_place" json:"birth_place"`
	Address           *string    `db:"address" json:"address"`
	City              *string    `db:"city" json:"city"`
	State             *string    `db:"state" json:"state"`
	Country           *string    `db:"country" json:"country"`
	ZipCode           *string    `db:"zip_code" json:"zip_code"`
	Phone             *string    `db:"phone" json:"phone"`
	Landline          *string    `db:"landline" json:"landline"`
	AlternativeEmail  *string    `db:"alternative_email" json:"alternative_email"`
	Profession        *string    `db:"profession" json:"profession"`
	EducationLevel    *string    `db:"education_level" json:"education_level"`
	Institution       *string    `db:"institution" json:"institution"`
	CurrentOccupation *string    `db:"current_occupation" json:"current_occupation"`
	SedeNombre        *string    `db:"sede_nombre" json:"sede_nombre"`
	EntrenadorNombre  *string    `db:"entrenador_nombre" json:"entrenador_nombre"`
	EntrenadorCelular *string    `db:"entrenador_celular" json:"entrenador_celular"`
}

// MissingRequiredFields lists the required profile fields that are absent or blank.
func (p Profile) MissingRequiredFields() []string {
	required := []struct {
		name  string
		value *string
	}{
		{"first_name", p.FirstName},
		{"last_name_paterno", p.LastNamePaterno},
		{"last_name_materno", p.LastNameMaterno},
		{"sex", p.Sex},
		{"birth_place", p.BirthPlace},
		{"address", p.Address},
		{"city", p.City},
		{"state", p.State},
		{"country", p.Country},
		{"zip_code", p.ZipCode},
		{"phone", p.Phone},
		{"profession", p.Profession},
		{"education_level", p.EducationLevel},
		{"institution", p.Institution},
	}

	var missing []string
	for _, field := range required {
		if field.value == nil || strings.TrimSpace(*field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if p.DOB == nil || p.DOB.IsZero() {
		missing = append(missing, "dob")
	}
	return missing
}

// Merge copies every non-nil field of src onto p. A non-nil empty string clears
// the field.
func (p *Profile) Merge(src Profile) {
	mergeString(&p.FirstName, src.FirstName)
	mergeString(&p.LastNamePaterno, src.LastNamePaterno)
	mergeString(&p.LastNameMaterno, src.LastNameMaterno)
	if src.DOB != nil {
		p.DOB = src.DOB
	}
	mergeString(&p.Sex, src.Sex)
	if src.Age != nil {
		p.Age = src.Age
	}
	mergeString(&p.BirthPlace, src.BirthPlace)
	mergeString(&p.Address, src.Address)
	mergeString(&p.City, src.City)
	mergeString(&p.State, src.State)
	mergeString(&p.Country, src.Country)
	mergeString(&p.ZipCode, src.ZipCode)
	mergeString(&p.Phone, src.Phone)
	mergeString(&p.Landline, src.Landline)
	mergeString(&p.AlternativeEmail, src.AlternativeEmail)
	mergeString(&p.Profession, src.Profession)
	mergeString(&p.EducationLevel, src.EducationLevel)
	mergeString(&p.Institution, src.Institution)
	mergeString(&p.CurrentOccupation, src.CurrentOccupation)
	mergeString(&p.SedeNombre, src.SedeNombre)
	mergeString(&p.EntrenadorNombre, src.EntrenadorNombre)
	mergeString(&p.EntrenadorCelular, src.EntrenadorCelular)
}

func mergeString(dst **string, src *string) {
	if src == nil {
		return
	}
	v := strings.TrimSpace(*src)
	if v == "" {
		*dst = nil
		return
	}
	*dst = &v
}

// IsComplete reports whether every required profile field is filled in.
func (p Profile) IsComplete() bool {
	return len(p.MissingRequiredFields()) == 0
}

// User is an account of any role. Students additionally carry profile, progress and
// payout state.
type User struct {
	ID                 string  `db:"id"`
	Email              string  `db:"email"`
	PasswordHash       string  `db:"password_hash"`
	Role               Role    `db:"role"`
	ProfileCompleted   bool    `db:"profile_completed"`
	DocumentsCompleted bool    `db:"documents_completed"`
	CohortID           *string `db:"cohort_id"`
	Profile

	DistributionUFLP           DistributionStatus `db:"distribution_uflp"`
	DistributionUFLPDate       *time.Time         `db:"distribution_uflp_date"`
	DistributionECOA           DistributionStatus `db:"distribution_ecoa"`
	DistributionECOADate       *time.Time         `db:"distribution_ecoa_date"`
	DistributionCommission     DistributionStatus `db:"distribution_commission"`
	DistributionCommissionDate *time.Time         `db:"distribution_commission_date"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// DisplayName returns "First Paterno Materno", falling back to the e-mail address.
func (u *User) DisplayName() string {
	parts := make([]string, 0, 3)
	for _, p := range []*string{u.FirstName, u.LastNamePaterno, u.LastNameMaterno} {
		if p != nil && strings.TrimSpace(*p) != "" {
			parts = append(parts, strings.TrimSpace(*p))
		}
	}
	if len(parts) == 0 {
		return u.Email
	}
	return strings.Join(parts, " ")
}

// GivenName returns the first name or a generic salutation.
func (u *User) GivenName() string {
	if u.FirstName != nil && strings.TrimSpace(*u.FirstName) != "" {
		return strings.TrimSpace(*u.FirstName)
	}
	return "Alumno"
}

// Surname returns the paternal surname used for sorting rosters.
func (u *User) Surname() string {
	if u.LastNamePaterno == nil {
		return ""
	}
	return *u.LastNamePaterno
}

// Distribution returns the payout state stored on the user.
func (u *User) Distribution() Distribution {
	return Distribution{
		UFLP:           u.DistributionUFLP,
		UFLPDate:       u.DistributionUFLPDate,
		ECOA:           u.DistributionECOA,
		ECOADate:       u.DistributionECOADate,
		Commission:     u.DistributionCommission,
		CommissionDate: u.DistributionCommissionDate,
	}
}
