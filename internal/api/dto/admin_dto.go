package dto

import "github.com/spec-kit/enrollment-portal/internal/domain"

// CohortRequest creates or updates a cohort.
type CohortRequest struct {
	Code      string `json:"code" validate:"required"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

// SettingRequest upserts one system setting.
type SettingRequest struct {
	Key         string  `json:"key" validate:"required"`
	Value       string  `json:"value" validate:"required"`
	Description *string `json:"description"`
}

// NotificationRequest is an ad-hoc notification for one user.
type NotificationRequest struct {
	UserID  string                  `json:"user_id" validate:"required"`
	Title   string                  `json:"title" validate:"required"`
	Message string                  `json:"message" validate:"required"`
	Type    domain.NotificationType `json:"type" validate:"omitempty,oneof=INFO SUCCESS WARNING ERROR"`
}

// PageQuery reads pagination from the query string.
type PageQuery struct {
	Page  int `query:"page"`
	Limit int `query:"limit"`
}
