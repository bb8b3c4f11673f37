package api

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"craftdeck/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

type ContextKey string

const (
	UserContextKey ContextKey = "user"

	sessionCookie = "token"
)

// session reads the caller's token from the session cookie, a bearer header
// or the token query parameter, in that order.
func (api *Server) session(r *http.Request) (*sessionClaims, error) {
	var tokenString string
	if c, err := r.Cookie(sessionCookie); err == nil {
		tokenString = c.Value
	}
	if tokenString == "" {
		parts := strings.Split(r.Header.Get("Authorization"), " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			tokenString = parts[1]
		}
	}
	if tokenString == "" {
		tokenString = r.URL.Query().Get("token")
	}
	if tokenString == "" {
		return nil, errors.Wrap(domain.ErrInvalidCredentials, "no session")
	}

	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(api.Secret), nil
	})
	if err != nil || !token.Valid {
		return nil, errors.Wrap(domain.ErrInvalidCredentials, "invalid token")
	}

	user, err := api.Store.GetUserByID(claims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.Wrap(domain.ErrInvalidCredentials, "user no longer exists")
	}
	claims.Permission = user.Permission
	return claims, nil
}

func (api *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := &sessionClaims{Permission: domain.PermissionAdmin}
		if api.AuthRequired {
			var err error
			if claims, err = api.session(r); err != nil {
				api.writeError(w, err)
				return
			}
		}
		ctx := context.WithValue(r.Context(), UserContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func currentUser(r *http.Request) *sessionClaims {
	claims, _ := r.Context().Value(UserContextKey).(*sessionClaims)
	return claims
}

func (api *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := currentUser(r)
		if claims == nil || claims.Permission < domain.PermissionAdmin {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (api *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrade through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijacking not supported")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (api *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		api.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}
