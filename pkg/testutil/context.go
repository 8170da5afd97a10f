package testutil

import (
	"net/http"

	id "caminomanager/pkg/domain"
	"caminomanager/pkg/requestcontext"
)

// SignedIn attaches a fresh identity for email to the request, the way the
// auth gate does for a resolved session.
func SignedIn(req *http.Request, email string) (*http.Request, requestcontext.Identity) {
	ident := requestcontext.Identity{ID: id.NewUserID(), Email: email, SessionID: id.NewSessionID()}
	return req.WithContext(requestcontext.WithUser(req.Context(), ident)), ident
}
