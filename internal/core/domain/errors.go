package domain

import "errors"

var (
	ErrDocumentNotFound      = errors.New("document not found")
	ErrRoomNotFound          = errors.New("room not found")
	ErrSessionNotFound       = errors.New("session not found")
	ErrNotRoomMember         = errors.New("connection is not a room member")
	ErrPermissionDenied      = errors.New("no permission to access this document")
	ErrCollaborationDisabled = errors.New("collaboration is disabled")
	ErrConnectionClosed      = errors.New("connection closed")
)
