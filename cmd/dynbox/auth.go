package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/dynbox/internal/infra/spotify"
)

const authPage = `<!DOCTYPE html>
<html>
<head><title>dynbox - Authorization Complete</title></head>
<body>
    <h1>Authorization Complete</h1>
    <p>You can close this window and return to the terminal.</p>
</body>
</html>
`

// callbackHandler completes the authorization code flow.
type callbackHandler struct {
	auth   *spotifyauth.Authenticator
	state  string
	tokens chan<- *oauth2.Token
}

func (h *callbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if st := r.FormValue("state"); st != h.state {
		http.Error(w, "State mismatch", http.StatusForbidden)
		fmt.Fprintf(os.Stderr, "State mismatch: %s != %s\n", st, h.state)
		return
	}

	token, err := h.auth.Token(r.Context(), h.state, r)
	if err != nil {
		http.Error(w, "Failed to get token", http.StatusForbidden)
		fmt.Fprintf(os.Stderr, "Failed to get token: %v\n", err)
		return
	}

	fmt.Fprint(w, authPage)
	select {
	case h.tokens <- token:
	default:
	}
}

// runAuth runs the callback server until a refresh token arrives.
func runAuth(clientID, clientSecret string, port int) error {
	redirectURI := fmt.Sprintf("http://127.0.0.1:%d/callback", port)
	tokens := make(chan *oauth2.Token, 1)
	handler := &callbackHandler{
		auth:   spotify.NewAuthenticator(clientID, clientSecret, redirectURI),
		state:  uuid.NewString(),
		tokens: tokens,
	}

	mux := http.NewServeMux()
	mux.Handle("/callback", handler)
	server := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	fmt.Println("Please visit the following URL to authorize dynbox:")
	fmt.Println("")
	fmt.Println(handler.auth.AuthURL(handler.state))
	fmt.Println("")
	fmt.Println("Waiting for authorization...")

	var token *oauth2.Token
	select {
	case token = <-tokens:
	case err := <-errCh:
		return errors.Wrap(err, "failed to start callback server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to shutdown server: %v\n", err)
	}

	printToken(os.Stdout, token.RefreshToken)
	return nil
}

func printToken(w io.Writer, refreshToken string) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "=== Authorization Successful ===")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Add this to your dynbox.yaml:")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "spotify:")
	fmt.Fprintf(w, "  refresh_token: \"%s\"\n", refreshToken)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Or set as environment variable:")
	fmt.Fprintf(w, "export SPOTIFY_REFRESH_TOKEN=\"%s\"\n", refreshToken)
}
