// auth.go - Access gate for the consumer routes.
//
// Consumers authenticate with HTTP Basic credentials checked against a
// single configured account. The "off" policy lets every request through
// and only logs who asked.
package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// AuthPolicy selects how the access gate decides.
type AuthPolicy string

const (
	AuthPolicyOff   AuthPolicy = "off"
	AuthPolicyBasic AuthPolicy = "basic"
)

// DefaultRealm is sent in WWW-Authenticate challenges.
const DefaultRealm = "mail-spool"

// AuthConfig holds the access gate configuration.
type AuthConfig struct {
	Policy AuthPolicy
	User   string
	// Pass is either the plain secret or a bcrypt hash of it.
	Pass  string
	Realm string

	// LockoutAttempts failed attempts within LockoutWindow lock the user
	// out for LockoutDuration. Zero disables lockout.
	LockoutAttempts int
	LockoutDuration time.Duration
	LockoutWindow   time.Duration
}

func (a AuthConfig) policy() AuthPolicy {
	if a.Policy == "" {
		return AuthPolicyOff
	}
	return AuthPolicy(strings.ToLower(string(a.Policy)))
}

func (a AuthConfig) realm() string {
	if a.Realm == "" {
		return DefaultRealm
	}
	return a.Realm
}

func (a AuthConfig) lockoutDuration() time.Duration {
	if a.LockoutDuration <= 0 {
		return 15 * time.Minute
	}
	return a.LockoutDuration
}

func (a AuthConfig) lockoutWindow() time.Duration {
	if a.LockoutWindow <= 0 {
		return 10 * time.Minute
	}
	return a.LockoutWindow
}

// Gate decides whether a presented credential may read the spool.
// Implementations must be safe for concurrent use.
type Gate interface {
	Authenticate(user, secret string) bool
}

// NewGate returns the gate for cfg's policy. Unknown policies are rejected
// by ValidateConfig; here they fall back to basic so nothing is opened by
// accident.
func NewGate(cfg AuthConfig) Gate {
	if cfg.policy() == AuthPolicyOff {
		return openGate{}
	}
	return &basicGate{
		user:   cfg.User,
		pass:   cfg.Pass,
		hashed: isBcryptHash(cfg.Pass),
	}
}

// openGate admits everyone.
type openGate struct{}

func (openGate) Authenticate(string, string) bool { return true }

// basicGate checks a single configured account.
type basicGate struct {
	user   string
	pass   string
	hashed bool
}

func (g *basicGate) Authenticate(user, secret string) bool {
	if user == "" || g.user == "" {
		return false
	}
	uOK := digestEqual(user, g.user)

	var pOK bool
	if g.hashed {
		pOK = bcrypt.CompareHashAndPassword([]byte(g.pass), []byte(secret)) == nil
	} else {
		pOK = digestEqual(secret, g.pass)
	}
	return uOK && pOK
}

// digestEqual compares a and b in constant time regardless of length.
func digestEqual(a, b string) bool {
	ah := sha256.Sum256([]byte(a))
	bh := sha256.Sum256([]byte(b))
	return hmac.Equal(ah[:], bh[:])
}

func isBcryptHash(s string) bool {
	if len(s) != 60 {
		return false
	}
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// requireAuth guards the consumer routes with the access gate.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ := r.BasicAuth()
		w.Header().Set("Cache-Control", "no-store")

		if s.cfg.Auth.policy() == AuthPolicyOff {
			s.log.Debug("access not enforced", map[string]any{
				"rid":  RequestIDFromContext(r.Context()),
				"user": user,
				"path": r.URL.Path,
			})
			next.ServeHTTP(w, r)
			return
		}

		if s.lockout != nil && user != "" {
			if locked, until, _ := s.lockout.IsLocked(user); locked {
				s.log.Warn("access denied", map[string]any{
					"rid":          RequestIDFromContext(r.Context()),
					"user":         user,
					"reason":       "locked",
					"locked_until": until.Format(time.RFC3339),
				})
				s.unauthorized(w, "locked")
				return
			}
		}

		if !s.gate.Authenticate(user, pass) {
			reason := "bad_credentials"
			if user == "" {
				reason = "missing_credentials"
			}
			if s.lockout != nil && user != "" {
				if locked, until := s.lockout.RecordFailedAttempt(user); locked {
					s.log.Warn("user locked out", map[string]any{
						"user":         user,
						"locked_until": until.Format(time.RFC3339),
					})
				}
			}
			s.log.Info("access denied", map[string]any{
				"rid":    RequestIDFromContext(r.Context()),
				"user":   user,
				"reason": reason,
			})
			s.unauthorized(w, reason)
			return
		}

		if s.lockout != nil {
			s.lockout.RecordSuccessfulLogin(user)
		}
		next.ServeHTTP(w, r)
	})
}

// unauthorized sends a Basic challenge for the configured realm.
func (s *Server) unauthorized(w http.ResponseWriter, reason string) {
	s.metrics.RecordAuthDenied(reason)
	realm := strings.ReplaceAll(s.cfg.Auth.realm(), `"`, "")
	w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`", charset="UTF-8"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

// logoutHandler always answers with a fresh challenge so that browsers
// drop their cached Basic credentials.
func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	s.unauthorized(w, "logout")
}
