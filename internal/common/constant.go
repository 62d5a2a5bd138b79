package common

// UserIDContextKey is the echo context key holding the authenticated user id
// extracted from the bearer token.
const UserIDContextKey = "user_id"

// DefaultDataType is the data_type of the record created at signup.
const DefaultDataType = "profile_info"
