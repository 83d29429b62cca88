package handlers

import (
	"github.com/spec-kit/token-service/internal/api/dto"
	"github.com/spec-kit/token-service/internal/domain"
	"github.com/spec-kit/token-service/internal/service"
)

func userResponse(user *domain.User) dto.UserResponse {
	return dto.UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Active:    user.Active,
		Roles:     domain.RoleNames(user.Roles),
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

func tokenPairResponse(issued *service.IssuedToken) dto.TokenPairResponse {
	return dto.TokenPairResponse{
		TokenID:          issued.TokenID.String(),
		AccessToken:      issued.AccessToken,
		RefreshToken:     issued.RefreshToken,
		TokenType:        "Bearer",
		AccessExpiresAt:  issued.AccessExpiresAt,
		RefreshExpiresAt: issued.RefreshExpiresAt,
	}
}

func authTokenResponses(tokens []*domain.AuthToken) []dto.AuthTokenResponse {
	out := make([]dto.AuthTokenResponse, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, dto.AuthTokenResponse{
			ID:        t.ID().String(),
			OwnerKind: string(t.Kind()),
			Owner:     t.Owner(),
			Roles:     domain.RoleNames(t.Roles()),
			Valid:     t.Valid(),
			CreatedAt: t.CreatedAt(),
		})
	}
	return out
}
