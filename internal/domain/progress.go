package domain

// UserProgress is the gating state of the profile → documents → payments pipeline.
type UserProgress struct {
	ProfileCompleted   bool `json:"profile_completed"`
	DocumentsCompleted bool `json:"documents_completed"`
	CanAccessDocuments bool `json:"can_access_documents"`
	CanAccessPayments  bool `json:"can_access_payments"`
}

// NewUserProgress derives the access flags from the two stored completion flags.
func NewUserProgress(profileCompleted, documentsCompleted bool) UserProgress {
	return UserProgress{
		ProfileCompleted:   profileCompleted,
		DocumentsCompleted: documentsCompleted,
		CanAccessDocuments: profileCompleted,
		CanAccessPayments:  profileCompleted && documentsCompleted,
	}
}
