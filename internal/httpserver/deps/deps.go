package deps

import (
	"time"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/httpserver/mw"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/session"
)

type Deps struct {
	Logger    logger.Logger
	StartTime time.Time
	Version   string
	Commit    string
	BuildDate string
	GoVersion string
	TimeNow   func() time.Time // for testing, defaults to time.Now

	AllowedHosts []string // Host headers allowed to access the server
	AllowedCIDRS []string // IPs allowed to access operational endpoints
	TrustProxy   bool     // true if running behind a trusted reverse proxy (e.g., cloudflared)

	Backend  string           // "redis" | "postgres" | "memory"
	Gateway  domain.Gateway   // persistence gateway, used by readiness checks
	Sessions *session.Manager // one reconciling session per signed-in owner

	Verifier     mw.TokenVerifier // access token verification
	SignInURL    string           // identity provider sign-in flow
	CookieName   string           // cookie carrying the access token
	CookieSecure bool             // Secure attribute on that cookie

	RequestTimeout time.Duration      // per-request timeout, not applied to streams
	RateLimit      mw.RateLimitConfig // bookmark API rate limit
	ResyncTrigger  chan struct{}      // manual resync of every session
}

// Now returns the current time from TimeNow, or time.Now when unset.
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
