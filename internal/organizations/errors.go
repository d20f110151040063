package organizations

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrMemberNotFound       = errors.New("member not found")
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrPermissionDenied     = errors.New("insufficient permissions")
	ErrNotInOrganization    = errors.New("member not in your organization")
	ErrSelfRemoval          = errors.New("cannot remove yourself")
	ErrSelfRoleChange       = errors.New("cannot change your own role")
	ErrCannotRemoveAdmin    = errors.New("cannot remove organization admin")
	ErrAlreadyActive        = errors.New("user already in your organization")
	ErrAlreadyElsewhere     = errors.New("user belongs to another organization")
	ErrValidation           = errors.New("invalid input")
)
