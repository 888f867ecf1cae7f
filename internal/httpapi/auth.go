package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/DoyleJ11/lol-lobby-client/internal/api"
	"github.com/DoyleJ11/lol-lobby-client/internal/auth"
	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
)

type ctxKey struct{}

func userFrom(ctx context.Context) protocol.User {
	u, _ := ctx.Value(ctxKey{}).(protocol.User)
	return u
}

// requireUser rejects requests without a valid bearer token.
func requireUser(iss *auth.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			u, err := iss.Verify(token)
			if err != nil {
				writeErr(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, u)))
		})
	}
}

func Login(accounts *auth.Accounts, iss *auth.Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var creds api.Credentials
		if err := decodeBody(w, r, &creds); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
		u, err := accounts.Login(creds.Username, creds.Password)
		if err != nil {
			writeErr(w, err)
			return
		}
		token, err := iss.Issue(u)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeData(w, http.StatusOK, api.LoginResult{Token: token, User: u})
	}
}

func Me(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, userFrom(r.Context()))
}
