package domain

import (
	"context"
	"errors"
)

// Permission is a scope granted to a calling service.
type Permission string

const (
	PermissionAccountRead      Permission = "ACCOUNT_READ"
	PermissionAccountWrite     Permission = "ACCOUNT_WRITE"
	PermissionAccountAdmin     Permission = "ACCOUNT_ADMIN"
	PermissionTransactionRead  Permission = "TRANSACTION_READ"
	PermissionTransactionWrite Permission = "TRANSACTION_WRITE"
	PermissionTransferRead     Permission = "TRANSFER_READ"
	PermissionTransferWrite    Permission = "TRANSFER_WRITE"
)

var validPermissions = map[Permission]bool{
	PermissionAccountRead:      true,
	PermissionAccountWrite:     true,
	PermissionAccountAdmin:     true,
	PermissionTransactionRead:  true,
	PermissionTransactionWrite: true,
	PermissionTransferRead:     true,
	PermissionTransferWrite:    true,
}

// IsValid checks if the permission is known
func (p Permission) IsValid() bool {
	return validPermissions[p]
}

// Principal is the authenticated caller of a service boundary: another
// service or an end user acting through the API gateway.
type Principal struct {
	Subject     string
	Service     string
	Permissions []Permission
}

// Has reports whether the principal was granted p.
func (p *Principal) Has(perm Permission) bool {
	for _, granted := range p.Permissions {
		if granted == perm {
			return true
		}
	}
	return false
}

// Authentication errors
var (
	ErrUnauthorized           = errors.New("unauthorized")
	ErrInvalidToken           = errors.New("invalid token")
	ErrExpiredToken           = errors.New("token has expired")
	ErrInsufficientPermission = errors.New("insufficient permission for this operation")
)

type principalKey struct{}

// ContextWithPrincipal returns a copy of ctx carrying p.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext extracts the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
