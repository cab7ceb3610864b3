package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wasmfleet-labs/wasmfleet-go/internal/platform/env"
)

type Mode string

const (
	ModeOIDC     Mode = "oidc"
	ModeDev      Mode = "dev"
	ModeDisabled Mode = "disabled"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

type Config struct {
	Mode Mode

	RolesClaim string
	EmailClaim string

	OIDCIssuerURL    string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCScopes       []string

	DevSubject string
	DevEmail   string
	DevRoles   []string
}

func ConfigFromEnv() (Config, error) {
	modeRaw := strings.ToLower(strings.TrimSpace(env.String("AUTH_MODE", string(ModeDev))))
	var mode Mode
	switch modeRaw {
	case string(ModeOIDC):
		mode = ModeOIDC
	case string(ModeDev):
		mode = ModeDev
	case string(ModeDisabled):
		mode = ModeDisabled
	default:
		return Config{}, fmt.Errorf("AUTH_MODE must be one of: oidc, dev, disabled (got %q)", modeRaw)
	}

	cfg := Config{
		Mode:             mode,
		RolesClaim:       env.String("AUTH_ROLES_CLAIM", "roles"),
		EmailClaim:       env.String("AUTH_EMAIL_CLAIM", "email"),
		OIDCIssuerURL:    env.String("OIDC_ISSUER_URL", ""),
		OIDCClientID:     env.String("OIDC_CLIENT_ID", ""),
		OIDCClientSecret: env.String("OIDC_CLIENT_SECRET", ""),
		OIDCScopes:       env.Strings("OIDC_SCOPES", []string{"openid", "profile", "email"}),
		DevSubject:       env.String("DEV_AUTH_SUBJECT", "dev-user"),
		DevEmail:         env.String("DEV_AUTH_EMAIL", "dev@localhost"),
		DevRoles:         env.Strings("DEV_AUTH_ROLES", []string{"operator"}),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeDev, ModeDisabled:
		return nil
	case ModeOIDC:
		if strings.TrimSpace(c.OIDCIssuerURL) == "" {
			return errors.New("OIDC_ISSUER_URL is required in oidc mode")
		}
		if strings.TrimSpace(c.OIDCClientID) == "" {
			return errors.New("OIDC_CLIENT_ID is required in oidc mode")
		}
		return nil
	default:
		return fmt.Errorf("unknown auth mode %q", c.Mode)
	}
}
