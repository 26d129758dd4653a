package config

// AliasesConfig maps user-facing model aliases ("smart", "cheap", "default")
// to "provider/model" targets.
type AliasesConfig struct {
	Aliases map[string]string `yaml:"aliases"`
}
