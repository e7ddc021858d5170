package config

import "time"

// AuthConfig configures control-plane bearer-token auth. The
// connector_refresh section (per-connector OAuth2 refresh-token
// credentials) is parsed into ConnectorRefresh, but no component reads
// it, so connector tokens are not refreshed.
type AuthConfig struct {
	// JWTSecretEnv names the env var holding the control plane's
	// signing secret. Unset disables auth on the control plane.
	JWTSecretEnv string        `yaml:"jwt_secret_env"`
	TokenExpiry  time.Duration `yaml:"token_expiry"`

	ConnectorRefresh map[string]ConnectorRefreshConfig `yaml:"connector_refresh"`
}

type ConnectorRefreshConfig struct {
	ClientIDEnv     string `yaml:"client_id_env"`
	ClientSecretEnv string `yaml:"client_secret_env"`
	RefreshTokenEnv string `yaml:"refresh_token_env"`
	TokenURL        string `yaml:"token_url"`
}
