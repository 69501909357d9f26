// Package policy holds the authorization predicates evaluated before any
// mutation. All predicates fail closed on nil input.
package policy

import "github.com/rewear/rewear/internal/model"

// Owned is anything with a single owning user.
type Owned interface {
	OwnedBy() int64
}

// IsOwner reports whether user owns entity.
func IsOwner(entity Owned, user *model.User) bool {
	if entity == nil || user == nil {
		return false
	}
	return entity.OwnedBy() == user.ID
}

// IsAdmin reports whether user has the admin role.
func IsAdmin(user *model.User) bool {
	return user != nil && user.Role == model.RoleAdmin
}

// IsBanned reports whether user is banned. A nil user counts as banned.
func IsBanned(user *model.User) bool {
	return user == nil || user.IsBanned
}

// CanModifyItem reports whether user may delete or moderate item.
func CanModifyItem(item *model.Item, user *model.User) bool {
	if item == nil {
		return false
	}
	return IsOwner(item, user) || IsAdmin(user)
}

// IsRequester reports whether user created swap.
func IsRequester(swap *model.Swap, user *model.User) bool {
	return swap != nil && user != nil && swap.RequesterID == user.ID
}

// CanRespond reports whether user owns the item requested by swap.
func CanRespond(swap *model.Swap, user *model.User) bool {
	return swap != nil && user != nil && swap.OwnerID == user.ID
}

// CanViewSwap reports whether user is a party to swap or an admin.
func CanViewSwap(swap *model.Swap, user *model.User) bool {
	if swap == nil {
		return false
	}
	return IsRequester(swap, user) || CanRespond(swap, user) || IsAdmin(user)
}
