package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Scopes are the Gmail permissions mailsync needs: reading, flag changes and sending
var Scopes = []string{
	gmail.GmailModifyScope,
	gmail.GmailSendScope,
}

const defaultAuthTimeout = 5 * time.Minute

// OAuth2Config locates the client credentials and the cached token
type OAuth2Config struct {
	CredentialsPath string
	TokenPath       string
	Scopes          []string

	// Out receives the authorization instructions; defaults to stdout
	Out io.Writer
	// ListenAddr is the loopback address of the redirect server
	ListenAddr string
	// Timeout bounds the wait for the browser redirect
	Timeout time.Duration
}

// NewOAuth2Config creates a configuration. No scopes means Scopes.
func NewOAuth2Config(credentialsPath string, tokenPath string, scopes ...string) *OAuth2Config {
	if len(scopes) == 0 {
		scopes = Scopes
	}
	return &OAuth2Config{
		CredentialsPath: credentialsPath,
		TokenPath:       tokenPath,
		Scopes:          scopes,
		Out:             os.Stdout,
		ListenAddr:      "127.0.0.1:0",
		Timeout:         defaultAuthTimeout,
	}
}

// LoadCredentials parses the client credentials file
func (c *OAuth2Config) LoadCredentials() (*oauth2.Config, error) {
	data, err := os.ReadFile(c.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	cfg, err := google.ConfigFromJSON(data, c.Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return cfg, nil
}

// LoadToken reads the cached token
func (c *OAuth2Config) LoadToken() (*oauth2.Token, error) {
	f, err := os.Open(c.TokenPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return token, nil
}

// SaveToken writes token with owner-only permissions
func (c *OAuth2Config) SaveToken(token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(c.TokenPath), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(c.TokenPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// GetToken returns a valid token, running the browser flow when there is no
// usable cached token
func (c *OAuth2Config) GetToken(ctx context.Context) (*oauth2.Token, error) {
	cfg, err := c.LoadCredentials()
	if err != nil {
		return nil, err
	}
	return c.token(ctx, cfg)
}

func (c *OAuth2Config) token(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	token, err := c.LoadToken()
	if err != nil {
		token, err = c.authenticate(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	if !token.Valid() {
		refreshed, err := cfg.TokenSource(ctx, token).Token()
		switch {
		case err == nil:
			token = refreshed
		case isRevoked(err):
			c.printf("\nThe saved Gmail token was revoked or expired. Sign in again.\n")
			if token, err = c.authenticate(ctx, cfg); err != nil {
				return nil, fmt.Errorf("re-authenticate: %w", err)
			}
		default:
			return nil, fmt.Errorf("refresh token: %w", err)
		}
	}

	if err := c.SaveToken(token); err != nil {
		return nil, err
	}
	return token, nil
}

// isRevoked reports whether err means the refresh token is no longer accepted
func isRevoked(err error) bool {
	var re *oauth2.RetrieveError
	return errors.As(err, &re) && re.ErrorCode == "invalid_grant"
}

// authenticate runs the loopback redirect flow
func (c *OAuth2Config) authenticate(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", c.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("start redirect listener: %w", err)
	}

	state := uuid.NewString()
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	server := &http.Server{
		Handler:           redirectHandler(state, codeCh, errCh),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	defer func() { _ = server.Close() }()

	local := *cfg
	local.RedirectURL = "http://" + ln.Addr().String()
	c.printf("\nAuthorization required\n")
	c.printf("1. Open this link: %s\n", local.AuthCodeURL(state, oauth2.AccessTypeOffline))
	c.printf("2. Grant access to mailsync\n")
	c.printf("3. You will be redirected automatically\n\nWaiting for authorization...\n")

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultAuthTimeout
	}
	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return nil, fmt.Errorf("authorization: %w", err)
	case <-time.After(timeout):
		return nil, errors.New("authorization timed out")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	token, err := local.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	c.printf("Authorization successful\n")
	return token, nil
}

// redirectHandler accepts the first redirect carrying the expected state
func redirectHandler(state string, codeCh chan<- string, errCh chan<- error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "Authorization state mismatch.", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "Authorization code not received.", http.StatusBadRequest)
			select {
			case errCh <- fmt.Errorf("authorization denied: %s", q.Get("error")):
			default:
			}
			return
		}
		_, _ = io.WriteString(w, "<html><body><h2>Authorization successful</h2><p>You can close this window.</p></body></html>")
		select {
		case codeCh <- code:
		default:
		}
	})
}

func (c *OAuth2Config) printf(format string, args ...any) {
	out := c.Out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, format, args...)
}

// HTTPClient returns an authorized client that refreshes its token
func (c *OAuth2Config) HTTPClient(ctx context.Context) (*http.Client, error) {
	cfg, err := c.LoadCredentials()
	if err != nil {
		return nil, err
	}
	token, err := c.token(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return cfg.Client(ctx, token), nil
}

// NewGmailService creates an authorized Gmail service
func NewGmailService(ctx context.Context, credentialsPath, tokenPath string, scopes ...string) (*gmail.Service, error) {
	client, err := NewOAuth2Config(credentialsPath, tokenPath, scopes...).HTTPClient(ctx)
	if err != nil {
		return nil, err
	}
	service, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create Gmail service: %w", err)
	}
	return service, nil
}
