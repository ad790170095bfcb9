package config

// Config is the top-level structure of config.yaml.
type Config struct {
	Host        string `yaml:"host,omitempty"`
	Version     int    `yaml:"version,omitempty"`
	RedirectURI string `yaml:"redirectUri,omitempty"`
	// CacheDir overrides the token cache directory. Empty uses
	// $TOKENKIT_CACHE_DIR, then ~/.config/tokenkit/tokens.
	CacheDir string `yaml:"cacheDir,omitempty"`

	DefaultProfile string             `yaml:"defaultProfile,omitempty"`
	Profiles       map[string]Profile `yaml:"profiles,omitempty"`
}

// Profile is a named set of request parameters.
type Profile struct {
	Host     string   `yaml:"host,omitempty"`
	Version  int      `yaml:"version,omitempty"`
	Tenant   string   `yaml:"tenant,omitempty"`
	App      string   `yaml:"app,omitempty"`
	Username string   `yaml:"username,omitempty"`
	Resource string   `yaml:"resource,omitempty"`
	Scopes   []string `yaml:"scopes,omitempty"`
	AuthType string   `yaml:"authType,omitempty"`

	AuthorizeArgs map[string]string `yaml:"authorizeArgs,omitempty"`
	TokenArgs     map[string]string `yaml:"tokenArgs,omitempty"`
}

// Profile returns the named profile with the top-level host and version
// filled in. An empty name selects DefaultProfile; with no default profile
// configured an empty name yields the bare defaults.
func (c Config) Profile(name string) (Profile, error) {
	if name == "" {
		name = c.DefaultProfile
	}
	var p Profile
	if name != "" {
		var ok bool
		if p, ok = c.Profiles[name]; !ok {
			return Profile{}, &ProfileNotFoundError{Name: name}
		}
	}
	if p.Host == "" {
		p.Host = c.Host
	}
	if p.Version == 0 {
		p.Version = c.Version
	}
	return p, nil
}
