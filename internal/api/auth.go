package api

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"craftdeck/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const sessionTTL = 7 * 24 * time.Hour

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionClaims struct {
	UserID     int `json:"user_id"`
	Permission int `json:"permission"`
	jwt.RegisteredClaims
}

func (api *Server) issueSession(w http.ResponseWriter, user *domain.User) error {
	expires := time.Now().Add(sessionTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		UserID:     user.ID,
		Permission: user.Permission,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(user.ID),
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})
	tokenString, err := token.SignedString([]byte(api.Secret))
	if err != nil {
		return errors.Wrap(err, "sign session")
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    tokenString,
		Expires:  expires,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func decodeCredentials(r *http.Request) (LoginRequest, bool) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, false
	}
	return req, req.Username != "" && req.Password != ""
}

func (api *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(r)
	if !ok {
		api.writeError(w, domain.ErrBadLogin)
		return
	}

	user, err := api.Store.GetUserByUsername(req.Username)
	if err != nil {
		api.writeError(w, err)
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		api.log.Info().Str("user", req.Username).Str("remote", r.RemoteAddr).Msg("Failed login")
		api.writeError(w, domain.ErrBadLogin)
		return
	}

	if err := api.issueSession(w, user); err != nil {
		api.writeError(w, err)
		return
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if err := api.Store.RecordLogin(user.ID, time.Now(), host); err != nil {
		api.log.Warn().Err(err).Int("user", user.ID).Msg("Could not record login")
	}
	writeResult(w, true)
}

// handleSessionValid never fails: an unusable session is reported as false.
func (api *Server) handleSessionValid(w http.ResponseWriter, r *http.Request) {
	if !api.AuthRequired {
		writeResult(w, true)
		return
	}
	_, err := api.session(r)
	writeResult(w, err == nil)
}

func (api *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
	writeResult(w, true)
}

// handleSetup creates the first administrator. It is refused once any user
// exists.
func (api *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	users, err := api.Store.ListUsers()
	if err != nil {
		api.writeError(w, err)
		return
	}
	if len(users) > 0 {
		http.Error(w, "Setup already completed", http.StatusForbidden)
		return
	}

	req, ok := decodeCredentials(r)
	if !ok {
		http.Error(w, "Username and password required", http.StatusBadRequest)
		return
	}

	user, err := api.createUser(req, domain.PermissionAdmin)
	if err != nil {
		api.writeError(w, err)
		return
	}
	if err := api.issueSession(w, user); err != nil {
		api.writeError(w, err)
		return
	}
	api.log.Info().Str("user", user.Username).Msg("Administrator created")
	writeResult(w, true)
}

func (api *Server) createUser(req LoginRequest, permission int) (*domain.User, error) {
	existing, err := api.Store.GetUserByUsername(req.Username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errors.Wrap(domain.ErrUserExists, req.Username)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}
	user := &domain.User{
		Username:   req.Username,
		Password:   string(hashed),
		Permission: permission,
	}
	if err := api.Store.CreateUser(user); err != nil {
		return nil, err
	}
	return user, nil
}
