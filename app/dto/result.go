package dto

// ConfirmEmailResult reports the outcome of a confirmation link. Following a
// link for an account that is already confirmed is not an error.
type ConfirmEmailResult struct {
	Email            string
	AlreadyConfirmed bool
}
