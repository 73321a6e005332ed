package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"minuto/internal/models"
	"minuto/pkg/logger"
)

// Claims are issued by the upstream auth provider. Subject is the user id.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type UserEnsurer interface {
	EnsureUser(ctx context.Context, id, email string) (*models.User, error)
}

// Authenticator validates HS256 bearer tokens and makes sure the user
// exists before the request reaches a handler.
type Authenticator struct {
	secret []byte
	parser *jwt.Parser
	users  UserEnsurer
	logger *logger.Logger
}

func NewAuthenticator(secret, issuer string, users UserEnsurer, l *logger.Logger) *Authenticator {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired()}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &Authenticator{
		secret: []byte(secret),
		parser: jwt.NewParser(opts...),
		users:  users,
		logger: l.Named("auth"),
	}
}

var errUnauthorized = errors.New("unauthorized")

func (a *Authenticator) authenticate(r *http.Request) (*Claims, error) {
	if len(a.secret) == 0 {
		return nil, errUnauthorized
	}
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return nil, errUnauthorized
	}

	claims := &Claims{}
	if _, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errUnauthorized
	}
	return claims, nil
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.authenticate(r)
		if err != nil {
			a.logger.Debugw("Rejected request", "path", r.URL.Path, "error", err)
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}

		if _, err := a.users.EnsureUser(r.Context(), claims.Subject, claims.Email); err != nil {
			a.logger.Errorw("Failed to ensure user", "user_id", claims.Subject, "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
			return
		}

		next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), claims.Subject)))
	})
}

type userIDKey struct{}

func withUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

// UserID returns the authenticated user of the request context.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}
