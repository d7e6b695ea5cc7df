package installer

// SetupState accumulates the wizard's answers. EnvVars ends up in the
// runtime .env; the API key deliberately does not — it goes through the
// vault instead.
type SetupState struct {
	EnvVars  map[string]string
	Provider string
	APIKey   string
}

func NewSetupState() *SetupState {
	return &SetupState{
		EnvVars: make(map[string]string),
	}
}
