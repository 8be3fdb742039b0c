package flow

import (
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"grantor/pkg/logging"
)

//go:embed templates/callback_success.html
var callbackSuccessHTML string

//go:embed templates/callback_error.html
var callbackErrorHTML string

// callbackResult is one authorization response delivered to the loopback
// redirect endpoint.
type callbackResult struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// IsError reports whether the provider redirected with an error.
func (r *callbackResult) IsError() bool {
	return r.Error != ""
}

// callbackServer is the short-lived loopback HTTP server that receives the
// authorization redirect. It binds an ephemeral 127.0.0.1 port, accepts
// exactly one callback, and releases the port on every exit path.
type callbackServer struct {
	server   *http.Server
	listener net.Listener
	resultCh chan *callbackResult
	once     sync.Once
	baseURL  string
}

func newCallbackServer() *callbackServer {
	return &callbackServer{
		resultCh: make(chan *callbackResult, 1),
	}
}

// Start binds the loopback listener and returns the redirect URI to hand to
// the provider. The server shuts down when ctx is cancelled.
func (s *callbackServer) Start(ctx context.Context) (string, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("failed to bind loopback callback listener: %w", err)
	}
	s.listener = listener
	s.baseURL = fmt.Sprintf("http://127.0.0.1:%d", listener.Addr().(*net.TCPAddr).Port)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", s.handleCallback)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logging.Warn("Flow", "Callback server stopped unexpectedly: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	logging.Debug("Flow", "Callback server listening on %s", s.baseURL)
	return s.RedirectURI(), nil
}

// RedirectURI returns the loopback redirect endpoint.
func (s *callbackServer) RedirectURI() string {
	return s.baseURL + "/callback"
}

// Wait blocks until the callback arrives or ctx is cancelled.
func (s *callbackServer) Wait(ctx context.Context) (*callbackResult, error) {
	select {
	case result := <-s.resultCh:
		return result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *callbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	var handled bool
	s.once.Do(func() {
		handled = true
		s.processCallback(w, r)
	})
	if !handled {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

// processCallback runs exactly once. It renders a response the user sees in
// their browser tab and delivers the result to the waiting engine.
func (s *callbackServer) processCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	query := r.URL.Query()
	result := &callbackResult{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}

	var tmpl *template.Template
	var data interface{}
	if result.IsError() {
		tmpl = template.Must(template.New("error").Parse(callbackErrorHTML))
		data = map[string]string{
			"Error":       result.Error,
			"Description": result.ErrorDescription,
		}
	} else {
		tmpl = template.Must(template.New("success").Parse(callbackSuccessHTML))
		data = map[string]string{}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}

	select {
	case s.resultCh <- result:
	default:
	}

	// Give the response time to flush before tearing the server down.
	go func() {
		time.Sleep(1 * time.Second)
		s.Stop()
	}()
}

// Stop shuts the server down and releases the port. Safe to call repeatedly.
func (s *callbackServer) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}
