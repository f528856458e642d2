package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/accounthub/apiserver/types"
)

type contextKey string

const (
	contextUserKey  contextKey = "user"
	contextTokenKey contextKey = "token"
)

func userFromContext(ctx context.Context) (types.User, error) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	if !ok || user.ID == "" {
		return types.User{}, errors.New("no authenticated user")
	}
	return user, nil
}

func tokenFromContext(ctx context.Context) (string, error) {
	token, ok := ctx.Value(contextTokenKey).(string)
	if !ok || token == "" {
		return "", errors.New("no request token")
	}
	return token, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, MessageResponse{Message: message})
}
