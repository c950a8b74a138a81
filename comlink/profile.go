package comlink

// Profile is a bound handle to one profile id/version, named in §6:
// Client.getProfile -> Profile, Profile.getUseCase -> UseCase. Binding
// against a concrete provider is deferred to UseCase.Perform.
type Profile struct {
	client *Client

	ID      string
	Version string
}

// GetUseCase returns a handle for name. Whether name is actually declared
// by the bound map is only known once a provider is bound, so the
// UsecaseNotFoundError this would raise is instead raised from the first
// Perform call against it.
func (p *Profile) GetUseCase(name string) *UseCase {
	return &UseCase{profile: p, Name: name}
}
