package domain

// Connection is the ephemeral handle to one live transport session. The user
// record is looked up once at authentication time and cached here for the
// session's lifetime; channel membership lives in the registry, not here.
type Connection struct {
	ID   string
	User User
}
