package domain

// Theme carries the host branding applied to the engine UI.
type Theme struct {
	Name       string            `json:"name" yaml:"name" mapstructure:"name"`
	Mode       string            `json:"mode" yaml:"mode" mapstructure:"mode"` // "light" or "dark"
	Primary    string            `json:"primary" yaml:"primary" mapstructure:"primary"`
	Accent     string            `json:"accent" yaml:"accent" mapstructure:"accent"`
	Background string            `json:"background" yaml:"background" mapstructure:"background"`
	Font       string            `json:"font" yaml:"font" mapstructure:"font"`
	LogoURL    string            `json:"logo_url" yaml:"logo_url" mapstructure:"logo_url"`
	Scale      string            `json:"scale" yaml:"scale" mapstructure:"scale"`
	Tokens     map[string]string `json:"tokens,omitempty" yaml:"tokens,omitempty" mapstructure:"tokens"`
}

// IsZero reports whether no theme field is set.
func (t Theme) IsZero() bool {
	return t.Name == "" && t.Mode == "" && t.Primary == "" && t.Accent == "" &&
		t.Background == "" && t.Font == "" && t.LogoURL == "" && t.Scale == "" && len(t.Tokens) == 0
}
