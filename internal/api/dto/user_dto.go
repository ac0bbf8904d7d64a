package dto

import (
	"time"

	"github.com/spec-kit/enrollment-portal/internal/domain"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// UserResponse is an account as returned to clients. The password hash never leaves the server.
type UserResponse struct {
	ID                 string              `json:"id"`
	Email              string              `json:"email"`
	Role               domain.Role         `json:"role"`
	ProfileCompleted   bool                `json:"profile_completed"`
	DocumentsCompleted bool                `json:"documents_completed"`
	CohortID           *string             `json:"cohort_id"`
	Profile            domain.Profile      `json:"profile"`
	Distribution       domain.Distribution `json:"distribution"`
	CreatedAt          time.Time           `json:"created_at"`
}

// ProfileRequest edits profile fields. Omitted fields keep their value; an empty
// string clears one.
type ProfileRequest struct {
	FirstName         *string `json:"first_name"`
	LastNamePaterno   *string `json:"last_name_paterno"`
	LastNameMaterno   *string `json:"last_name_materno"`
	DOB               *string `json:"dob" validate:"omitempty,datetime=2006-01-02"`
	Sex               *string `json:"sex"`
	Age               *int    `json:"age" validate:"omitempty,min=0,max=130"`
	BirthPlace        *string `json:"birth_place"`
	Address           *string `json:"address"`
	City              *string `json:"city"`
	State             *string `json:"state"`
	Country           *string `json:"country"`
	ZipCode           *string `json:"zip_code"`
	Phone             *string `json:"phone"`
	Landline          *string `json:"landline"`
	AlternativeEmail  *string `json:"alternative_email" validate:"omitempty,email"`
	Profession        *string `json:"profession"`
	EducationLevel    *string `json:"education_level"`
	Institution       *string `json:"institution"`
	CurrentOccupation *string `json:"current_occupation"`
	SedeNombre        *string `json:"sede_nombre"`
	EntrenadorNombre  *string `json:"entrenador_nombre"`
	EntrenadorCelular *string `json:"entrenador_celular"`
}

// ToProfile converts the request into profile changes. Call after Validate.
func (r ProfileRequest) ToProfile() domain.Profile {
	p := domain.Profile{
		FirstName:         r.FirstName,
		LastNamePaterno:   r.LastNamePaterno,
		LastNameMaterno:   r.LastNameMaterno,
		Sex:               r.Sex,
		Age:               r.Age,
		BirthPlace:        r.BirthPlace,
		Address:           r.Address,
		City:              r.City,
		State:             r.State,
		Country:           r.Country,
		ZipCode:           r.ZipCode,
		Phone:             r.Phone,
		Landline:          r.Landline,
		AlternativeEmail:  r.AlternativeEmail,
		Profession:        r.Profession,
		EducationLevel:    r.EducationLevel,
		Institution:       r.Institution,
		CurrentOccupation: r.CurrentOccupation,
		SedeNombre:        r.SedeNombre,
		EntrenadorNombre:  r.EntrenadorNombre,
		EntrenadorCelular: r.EntrenadorCelular,
	}
	if r.DOB != nil && *r.DOB != "" {
		if dob, err := time.Parse(DateLayout, *r.DOB); err == nil {
			p.DOB = &dob
		}
	}
	return p
}

// AdminUserUpdateRequest is an administrator's edit of an account.
type AdminUserUpdateRequest struct {
	Email    *string         `json:"email" validate:"omitempty,email"`
	Role     *domain.Role    `json:"role" validate:"omitempty,oneof=STUDENT AUDITOR SUPERADMIN ADMIN"`
	CohortID *string         `json:"cohort_id"`
	Password *string         `json:"password" validate:"omitempty,min=6"`
	Profile  *ProfileRequest `json:"profile"`
}

// FinancialsRequest sets a student's distribution statuses and dates.
type FinancialsRequest struct {
	UFLP           *domain.DistributionStatus `json:"uflp" validate:"omitempty,oneof=PENDING IN_PROCESS PAID"`
	UFLPDate       *string                    `json:"uflp_date" validate:"omitempty,datetime=2006-01-02"`
	ECOA           *domain.DistributionStatus `json:"ecoa" validate:"omitempty,oneof=PENDING IN_PROCESS PAID"`
	ECOADate       *string                    `json:"ecoa_date" validate:"omitempty,datetime=2006-01-02"`
	Commission     *domain.DistributionStatus `json:"commission" validate:"omitempty,oneof=PENDING IN_PROCESS PAID"`
	CommissionDate *string                    `json:"commission_date" validate:"omitempty,datetime=2006-01-02"`
}

// ParseDate parses an optional wire date; empty input yields nil.
func ParseDate(value *string) *time.Time {
	if value == nil || *value == "" {
		return nil
	}
	t, err := time.Parse(DateLayout, *value)
	if err != nil {
		return nil
	}
	return &t
}
