package api

import (
	"net/http"
	"strconv"

	"craftdeck/internal/domain"
	"craftdeck/pkg/sdk"
)

func toWireUser(u domain.User) sdk.User {
	out := sdk.User{
		ID:         u.ID,
		Name:       u.Username,
		LastLogin:  u.LastLogin,
		Permission: u.Permission,
	}
	if u.LastAddress != "" {
		addr := u.LastAddress
		out.LastAddress = &addr
	}
	return out
}

func (api *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := api.Store.ListUsers()
	if err != nil {
		api.writeError(w, err)
		return
	}
	out := make([]sdk.User, 0, len(users))
	for _, u := range users {
		out = append(out, toWireUser(u))
	}
	writeJSON(w, http.StatusOK, out)
}

func (api *Server) handleAddUser(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(r)
	if !ok {
		http.Error(w, "Username and password required", http.StatusBadRequest)
		return
	}
	user, err := api.createUser(req, 0)
	if err != nil {
		api.writeError(w, err)
		return
	}
	api.log.Info().Str("user", user.Username).Msg("User added")
	writeResult(w, true)
}

func (api *Server) handleRemoveUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.URL.Query().Get("user_id"))
	if err != nil {
		http.Error(w, "Invalid user_id", http.StatusBadRequest)
		return
	}
	if claims := currentUser(r); claims != nil && api.AuthRequired && claims.UserID == id {
		http.Error(w, "Cannot remove the current user", http.StatusBadRequest)
		return
	}
	if err := api.Store.DeleteUser(id); err != nil {
		api.writeError(w, err)
		return
	}
	writeResult(w, true)
}
