package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgdir/internal/models"
)

// Issuer is the iss claim of tokens minted and accepted by orgdir.
const Issuer = "orgdir"

// Identity is the caller attached to the request context after verification.
// The system role is informational; access decisions read it from the store.
type Identity struct {
	UserID     uuid.UUID
	SystemRole models.SystemRole
}

type contextKey int

const (
	identityContextKey contextKey = iota
)

// IdentityFromContext returns the verified caller, or nil for unauthenticated requests.
func IdentityFromContext(ctx context.Context) *Identity {
	identity, _ := ctx.Value(identityContextKey).(*Identity)
	return identity
}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// Claims are the JWT claims carried by an orgdir bearer token.
type Claims struct {
	SystemRole string `json:"system_role,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies HS256 bearer tokens signed with a shared secret.
type JWTVerifier struct {
	secret    []byte
	skip      map[string]bool
	errWriter *connect.ErrorWriter
}

// NewJWTVerifier creates a verifier. Requests to any of the public paths are
// passed through without a token.
func NewJWTVerifier(secret string, public ...string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("JWT secret not provided")
	}

	skip := make(map[string]bool, len(public))
	for _, p := range public {
		skip[p] = true
	}

	return &JWTVerifier{secret: []byte(secret), skip: skip, errWriter: connect.NewErrorWriter()}, nil
}

// Middleware returns an HTTP middleware that verifies the bearer token and
// stores the caller's Identity in the request context. Rejections are written
// as connect Unauthenticated errors in the protocol of the request.
func (v *JWTVerifier) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v.skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			tokenString := extractBearerToken(r)
			if tokenString == "" {
				log.Warn().Msg("Missing Authorization header")
				v.unauthorized(w, r, "missing bearer token")
				return
			}

			identity, err := v.Verify(tokenString)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to verify JWT")
				v.unauthorized(w, r, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// Verify checks the token signature, issuer and expiry and returns the identity it names.
func (v *JWTVerifier) Verify(tokenString string) (*Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	},
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid sub UUID: %w", err)
	}

	role := models.SystemRoleUser
	if claims.SystemRole != "" {
		role, err = models.ParseSystemRole(claims.SystemRole)
		if err != nil {
			return nil, fmt.Errorf("invalid system_role claim: %w", err)
		}
	}

	return &Identity{UserID: userID, SystemRole: role}, nil
}

// extractBearerToken extracts the JWT from the Authorization header.
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return parts[1]
}

func (v *JWTVerifier) unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="orgdir"`)
	_ = v.errWriter.Write(w, r, connect.NewError(connect.CodeUnauthenticated, errors.New(message)))
}
