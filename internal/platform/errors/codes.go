// Package errors provides structured error handling for coordinator services.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Binding errors
	CodeBindingEmptyID      Code = "BINDING_EMPTY_ID"
	CodeBindingNotFound     Code = "BINDING_NOT_FOUND"
	CodeBindingInvalidGrace Code = "BINDING_INVALID_GRACE_PERIOD"

	// Session errors
	CodeSessionEmptyBindingID       Code = "SESSION_EMPTY_BINDING_ID"
	CodeSessionEmptyCreator         Code = "SESSION_EMPTY_CREATOR"
	CodeSessionInvalidStatus        Code = "SESSION_INVALID_STATUS"
	CodeSessionInvalidWindow        Code = "SESSION_INVALID_WINDOW"
	CodeSessionClaimRejected        Code = "SESSION_CLAIM_REJECTED"
	CodeSessionScheduleUnavailable  Code = "SESSION_SCHEDULE_UNAVAILABLE"
	CodeSessionCreatorUnresolved    Code = "SESSION_CREATOR_UNRESOLVED"
	CodeSessionRegistryKeyCollision Code = "SESSION_REGISTRY_KEY_COLLISION"

	// Participant errors
	CodeParticipantEmptyMemberID  Code = "PARTICIPANT_EMPTY_MEMBER_ID"
	CodeParticipantEmptySessionID Code = "PARTICIPANT_EMPTY_SESSION_ID"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
	CodeConflict Code = "CONFLICT"
)

// GRPCCode maps a domain error code to the canonical gRPC status code.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeNotFound, CodeBindingNotFound:
		return codes.NotFound
	case CodeConflict, CodeSessionRegistryKeyCollision:
		return codes.AlreadyExists
	case CodeSessionClaimRejected:
		return codes.FailedPrecondition
	case CodeBindingEmptyID, CodeBindingInvalidGrace,
		CodeSessionEmptyBindingID, CodeSessionEmptyCreator,
		CodeSessionInvalidStatus, CodeSessionInvalidWindow,
		CodeParticipantEmptyMemberID, CodeParticipantEmptySessionID:
		return codes.InvalidArgument
	case CodeSessionScheduleUnavailable, CodeSessionCreatorUnresolved:
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}
