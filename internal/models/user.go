// internal/models/user.go
package models

// User is the read-only contact directory row the pipeline needs: where to
// deliver email/SMS and who the default manager is. Account management itself
// lives in the portal, not here.
type User struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	Phone     string  `json:"phone,omitempty"`
	ManagerID *string `json:"managerId,omitempty"`
}
