//go:build !linux

package media

// NewSession creates a new platform-specific media session.
// Platforms without an integration fall back to the no-op session.
func NewSession() (Session, error) {
	return NewNoOpSession(), nil
}
