package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/encore/internal/shared"
	"golang.org/x/oauth2"
)

// DefaultLinkTimeout bounds how long the loopback flow waits for the user to
// authorize in the browser.
const DefaultLinkTimeout = 2 * time.Minute

// Linker runs the OAuth2 loopback flow: it serves the callback on a local
// address, opens the browser to the consent page, and waits for the
// exchanged token.
type Linker struct {
	Config      *oauth2.Config
	Addr        string
	Logger      *log.Logger
	Timeout     time.Duration
	OpenBrowser func(url string) error
	// OnAuthURL is invoked with the consent URL, e.g. to print it when the
	// browser cannot be opened.
	OnAuthURL func(url string)
}

// Link executes the flow and returns the exchanged token.
func (l *Linker) Link(ctx context.Context) (*oauth2.Token, error) {
	if l.Config == nil {
		return nil, fmt.Errorf("%w: oauth config", shared.ErrMissingArgument)
	}

	logger := l.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	timeout := l.Timeout
	if timeout <= 0 {
		timeout = DefaultLinkTimeout
	}

	state, err := shared.GenerateState()
	if err != nil {
		return nil, err
	}

	authURL := l.Config.AuthCodeURL(state)
	handler := NewCallbackHandler(l.Config, state)

	router := NewBasicRouter()
	router.Use(RequestLogger(logger))
	router.Handler(handler)

	httpServer := &http.Server{Addr: l.Addr, Handler: router}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting link server", "addr", l.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	time.Sleep(100 * time.Millisecond)

	if l.OnAuthURL != nil {
		l.OnAuthURL(authURL)
	}

	open := l.OpenBrowser
	if open == nil {
		open = shared.OpenBrowser
	}
	if err := open(authURL); err != nil {
		logger.Warn("failed to open browser automatically", "error", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var result LinkResult
	select {
	case result = <-handler.Result():
		// Got result from callback
	case err := <-serverErrors:
		return nil, fmt.Errorf("link server error: %w", err)
	case <-timer.C:
		return nil, fmt.Errorf("%w: authorization timed out after %s", shared.ErrTimeout, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error shutting down link server", "error", err)
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("authorization failed: %w", result.Error())
	}
	if result.Token == nil {
		return nil, fmt.Errorf("no token received")
	}

	return result.Token, nil
}
