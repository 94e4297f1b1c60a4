package escrow

// Config is the process-wide platform configuration consulted by every
// fund-moving operation. It is persisted through the state manager rather
// than held in a package-level variable so reads always observe a committed
// value.
type Config struct {
	Treasury [20]byte
	FeeBps   int64
	Paused   bool
}

// Clone returns a copy safe for modification.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Authorizer proves that the calling context acts as the given principal.
// RequireAuth failing aborts the whole operation before any state change.
type Authorizer interface {
	RequireAuth(principal [20]byte) error
}

// AuthorizerFunc adapts a plain function to the Authorizer interface.
type AuthorizerFunc func(principal [20]byte) error

func (f AuthorizerFunc) RequireAuth(principal [20]byte) error { return f(principal) }
