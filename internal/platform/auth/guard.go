package auth

// AllowSelf reports whether p is the owner.
func AllowSelf(p Principal, ownerID int64) bool {
	return p.ID == ownerID
}

// AllowSelfOrAdmin reports whether p is the owner or carries the admin flag.
func AllowSelfOrAdmin(p Principal, ownerID int64) bool {
	return p.ID == ownerID || p.Admin
}

// AllowAdmin reports whether p carries the admin flag.
func AllowAdmin(p Principal) bool {
	return p.Admin
}
