package handlers

import (
	"github.com/spec-kit/enrollment-portal/internal/api/dto"
	"github.com/spec-kit/enrollment-portal/internal/domain"
	"github.com/spec-kit/enrollment-portal/internal/repository"
)

func userResponse(u *domain.User) dto.UserResponse {
	return dto.UserResponse{
		ID:                 u.ID,
		Email:              u.Email,
		Role:               u.Role,
		ProfileCompleted:   u.ProfileCompleted,
		DocumentsCompleted: u.DocumentsCompleted,
		CohortID:           u.CohortID,
		Profile:            u.Profile,
		Distribution:       u.Distribution(),
		CreatedAt:          u.CreatedAt,
	}
}

func userResponses(users []domain.User) []dto.UserResponse {
	out := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		out = append(out, userResponse(&users[i]))
	}
	return out
}

func documentResponse(d *domain.Document) dto.DocumentResponse {
	return dto.DocumentResponse{
		ID:              d.ID,
		UserID:          d.UserID,
		Type:            d.Type,
		Status:          d.Status,
		RejectionReason: d.RejectionReason,
		FileAvailable:   d.FileAvailable(),
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

func documentResponses(docs []domain.Document) []dto.DocumentResponse {
	out := make([]dto.DocumentResponse, 0, len(docs))
	for i := range docs {
		out = append(out, documentResponse(&docs[i]))
	}
	return out
}

func ownedDocumentResponses(docs []repository.DocumentWithOwner) []dto.DocumentResponse {
	out := make([]dto.DocumentResponse, 0, len(docs))
	for i := range docs {
		resp := documentResponse(&docs[i].Document)
		resp.Owner = ownerResponse(docs[i].Owner)
		out = append(out, resp)
	}
	return out
}

func paymentResponse(p *domain.Payment) dto.PaymentResponse {
	return dto.PaymentResponse{
		ID:              p.ID,
		UserID:          p.UserID,
		Amount:          p.Amount,
		Date:            p.Date,
		Location:        p.Location,
		Method:          p.Method,
		PayerName:       p.PayerName,
		Status:          p.Status,
		RejectionReason: p.RejectionReason,
		FileAvailable:   p.FileAvailable(),
		CreatedAt:       p.CreatedAt,
	}
}

func paymentResponses(payments []domain.Payment) []dto.PaymentResponse {
	out := make([]dto.PaymentResponse, 0, len(payments))
	for i := range payments {
		out = append(out, paymentResponse(&payments[i]))
	}
	return out
}

func ownedPaymentResponses(payments []repository.PaymentWithOwner) []dto.PaymentResponse {
	out := make([]dto.PaymentResponse, 0, len(payments))
	for i := range payments {
		resp := paymentResponse(&payments[i].Payment)
		resp.Owner = ownerResponse(payments[i].Owner)
		out = append(out, resp)
	}
	return out
}

func ownerResponse(o repository.Owner) *dto.OwnerResponse {
	name := ""
	if o.OwnerFirstName != nil {
		name = *o.OwnerFirstName
	}
	if o.OwnerLastName != nil {
		if name != "" {
			name += " "
		}
		name += *o.OwnerLastName
	}
	return &dto.OwnerResponse{Email: o.OwnerEmail, Name: name}
}
