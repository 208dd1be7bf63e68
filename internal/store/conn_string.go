package store

import (
	"net"
	"net/url"
	"strconv"

	"github.com/AtsumiFlex/Aura-sub002/internal/config"
)

// BuildConnString returns the pgx URL for the session database. appName is
// reported to the server as application_name so sessions of different
// gateway instances can be told apart; empty leaves it unset.
func BuildConnString(cfg config.DBConfig, appName string) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	params := url.Values{"sslmode": {sslMode}}
	if appName != "" {
		params.Set("application_name", appName)
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: params.Encode(),
	}
	return u.String()
}
