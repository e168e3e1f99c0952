// Package domain contains core concepts of the messaging system.
// No runtime, network, or storage logic should be added here.
package domain

type UserID = string

// User is the externally owned account record. It is looked up once per
// connection at authentication time and cached on the connection for the
// session's lifetime.
type User struct {
	ID          UserID
	Username    string
	DisplayName string
	Role        string
}
