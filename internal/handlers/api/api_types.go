package api

import (
	"time"

	"github.com/nobilishq/nobilis-server/model"
)

const apiVersion = "1.0"

// Google JSON API style response structures
type APIResponse struct {
	APIVersion string        `json:"apiVersion"`
	Data       any           `json:"data,omitempty"`
	Error      *APIErrorInfo `json:"error,omitempty"`
}

type APIErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewDataResponse(data any) APIResponse {
	return APIResponse{
		APIVersion: apiVersion,
		Data:       data,
	}
}

func NewErrorResponse(code int, message string) APIResponse {
	return APIResponse{
		APIVersion: apiVersion,
		Error:      &APIErrorInfo{Code: code, Message: message},
	}
}

type UserInfoResponse struct {
	UserID    uint   `json:"userId"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	FullName  string `json:"fullName"`
	IsAdmin   bool   `json:"isAdmin,omitempty"`
	Role      string `json:"role,omitempty"`
}

func newUserInfoResponse(user *model.User) UserInfoResponse {
	info := UserInfoResponse{
		UserID:    user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		FullName:  user.FullName(),
		IsAdmin:   user.IsAdmin,
	}
	if user.Role != nil {
		info.Role = user.Role.Code
	}
	return info
}

type ProfileResponse struct {
	UserID             uint       `json:"userId"`
	PhoneNumber        string     `json:"phoneNumber,omitempty"`
	City               string     `json:"city,omitempty"`
	Occupation         string     `json:"occupation,omitempty"`
	Biography          string     `json:"biography,omitempty"`
	SubscriptionStatus string     `json:"subscriptionStatus,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd  bool       `json:"cancelAtPeriodEnd"`
	CardBrand          string     `json:"cardBrand,omitempty"`
	CardLast4          string     `json:"cardLast4,omitempty"`
}

func newProfileResponse(profile *model.UserProfile) ProfileResponse {
	return ProfileResponse{
		UserID:             profile.UserID,
		PhoneNumber:        profile.PhoneNumber,
		City:               profile.City,
		Occupation:         profile.Occupation,
		Biography:          profile.Biography,
		SubscriptionStatus: profile.SubscriptionStatus,
		CurrentPeriodEnd:   profile.CurrentPeriodEnd,
		CancelAtPeriodEnd:  profile.CancelAtPeriodEnd,
		CardBrand:          profile.CardBrand,
		CardLast4:          profile.CardLast4,
	}
}
