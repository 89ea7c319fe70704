package waitinglist

import "errors"

var (
	ErrApplicantNotFound = errors.New("applicant not found")
	ErrAlreadyProcessed  = errors.New("applicant has already been processed")
	ErrAlreadyApproved   = errors.New("an approved application already exists for this email")
	ErrEmailRegistered   = errors.New("an account already exists for this email")
	ErrReasonNotFound    = errors.New("rejection reason not found")
	ErrMailDelivery      = errors.New("failed to deliver email")
)
