package domain

import "time"

// ReviewStatus is the review state shared by documents and payments.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "PENDING"
	ReviewApproved ReviewStatus = "APPROVED"
	ReviewRejected ReviewStatus = "REJECTED"
)

// IsTerminalDecision reports whether s is a status a reviewer may set.
func (s ReviewStatus) IsTerminalDecision() bool {
	return s == ReviewApproved || s == ReviewRejected
}

// DocumentType names one of the documents a student must upload.
type DocumentType string

const (
	DocumentDNIFront         DocumentType = "PDF DNI FRENTE"
	DocumentDNIBack          DocumentType = "PDF DNI DORSO"
	DocumentHighSchoolDegree DocumentType = "PDF TITULO SECUNDARIO"
	DocumentUniversityDegree DocumentType = "PDF TITULO UNIVERSITARIO"
	DocumentCoachDegree      DocumentType = "PDF TITULO DE COACH"
	DocumentCurriculum       DocumentType = "PDF CURRICULUM VITAE"
	DocumentBirthCertificate DocumentType = "PDF PARTIDA DE NACIMIENTO"
	DocumentIDPhoto          DocumentType = "FOTO CARNET"
)

// RequiredDocumentTypes is the fixed set that completes a student's file.
var RequiredDocumentTypes = []DocumentType{
	DocumentDNIFront,
	DocumentDNIBack,
	DocumentHighSchoolDegree,
	DocumentUniversityDegree,
	DocumentCoachDegree,
	DocumentCurriculum,
	DocumentBirthCertificate,
	DocumentIDPhoto,
}

// Valid reports whether t belongs to the required enumeration.
func (t DocumentType) Valid() bool {
	for _, required := range RequiredDocumentTypes {
		if t == required {
			return true
		}
	}
	return false
}

// CoversRequiredTypes reports whether uploaded contains every required type.
// Duplicates and review status do not matter.
func CoversRequiredTypes(uploaded []DocumentType) bool {
	seen := make(map[DocumentType]struct{}, len(uploaded))
	for _, t := range uploaded {
		seen[t] = struct{}{}
	}
	for _, required := range RequiredDocumentTypes {
		if _, ok := seen[required]; !ok {
			return false
		}
	}
	return true
}

// Document is an uploaded file of a given type. Approved documents have their file
// removed from storage, so URL is nil for them.
type Document struct {
	ID              string       `db:"id"`
	UserID          string       `db:"user_id"`
	Type            DocumentType `db:"type"`
	URL             *string      `db:"url"`
	Status          ReviewStatus `db:"status"`
	RejectionReason *string      `db:"rejection_reason"`
	CreatedAt       time.Time    `db:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
}

// FileAvailable reports whether the stored file can still be fetched.
func (d *Document) FileAvailable() bool {
	return d.URL != nil && *d.URL != ""
}
