package domain

// Roles. Staff operate the back office; customers own their quotes.
const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)
