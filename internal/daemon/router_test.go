package daemon

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"grantor/internal/api"
	"grantor/internal/flow"
	"grantor/internal/prober"
	"grantor/internal/registry"
	"grantor/internal/session"
	"grantor/internal/store"
	"grantor/pkg/logging"
	"grantor/pkg/oauth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logging.InitForTesting()
}

// setupAPI wires real components behind the service locator: a file store in
// a temp dir, the built-in registry plus a pasted-secret-only test provider,
// and a supervisor with the full engine set.
func setupAPI(t *testing.T) {
	t.Helper()

	fileStore, err := store.NewFileStore(store.FileStoreConfig{StorageDir: t.TempDir()})
	require.NoError(t, err)

	reg := registry.New(&registry.ProviderDescriptor{
		ID:         "acme",
		Label:      "Acme",
		Strategies: []registry.AcquisitionStrategy{registry.StrategyPastedSecret},
	})
	p := prober.New()
	sv := session.NewSupervisor(reg, fileStore, flow.Engines(oauth.NewClient(), p, nil))

	api.RegisterCredentialStore(fileStore)
	api.RegisterProviderRegistry(reg)
	api.RegisterProber(p)
	api.RegisterSupervisor(sv)
	t.Cleanup(func() {
		api.RegisterCredentialStore(nil)
		api.RegisterProviderRegistry(nil)
		api.RegisterProber(nil)
		api.RegisterSupervisor(nil)
	})
}

func startServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(newRouter())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func TestRouter_ListProviders(t *testing.T) {
	setupAPI(t)
	srv := startServer(t)

	resp, err := http.Get(srv.URL + "/api/providers")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var providers []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&providers))
	require.Len(t, providers, 1)
	assert.Equal(t, "acme", providers[0]["id"])
}

func TestRouter_SessionLifecycle(t *testing.T) {
	setupAPI(t)
	srv := startServer(t)

	resp := postJSON(t, srv.URL+"/api/sessions", map[string]string{
		"provider_id": "acme",
		"strategy":    "pasted_secret",
		"secret":      "sk-live-abc",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.SessionID)

	// The pasted-secret flow is synchronous; the event stream delivers at
	// least the terminal transition and then ends.
	require.Eventually(t, func() bool {
		r, err := http.Get(srv.URL + "/api/sessions/" + created.SessionID)
		if err != nil {
			return false
		}
		defer r.Body.Close()
		var tr session.Transition
		if json.NewDecoder(r.Body).Decode(&tr) != nil {
			return false
		}
		return tr.State == session.StateSucceeded
	}, 5*time.Second, 50*time.Millisecond)

	events, err := http.Get(srv.URL + "/api/sessions/" + created.SessionID + "/events")
	require.NoError(t, err)
	defer events.Body.Close()
	require.Equal(t, http.StatusOK, events.StatusCode)
	assert.Contains(t, events.Header.Get("Content-Type"), "text/event-stream")

	var sawTerminal bool
	scanner := bufio.NewScanner(events.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			var tr session.Transition
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &tr))
			assert.Equal(t, created.SessionID, tr.SessionID)
			if tr.State.IsTerminal() {
				sawTerminal = true
			}
		}
	}
	assert.True(t, sawTerminal, "event stream must deliver the terminal transition")

	// The stored credential appears in the list with its secret redacted.
	creds, err := http.Get(srv.URL + "/api/credentials")
	require.NoError(t, err)
	defer creds.Body.Close()

	var listed []json.RawMessage
	require.NoError(t, json.NewDecoder(creds.Body).Decode(&listed))
	require.Len(t, listed, 1)
	assert.NotContains(t, string(listed[0]), "sk-live-abc")
	assert.Contains(t, string(listed[0]), "[REDACTED]")
}

func TestRouter_StartSessionValidation(t *testing.T) {
	setupAPI(t)
	srv := startServer(t)

	resp := postJSON(t, srv.URL+"/api/sessions", map[string]string{
		"provider_id": "nope",
		"strategy":    "pasted_secret",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/api/sessions", map[string]string{
		"provider_id": "acme",
		"strategy":    "carrier_pigeon",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_CancelUnknownSession(t *testing.T) {
	setupAPI(t)
	srv := startServer(t)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/sessions/ghost", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_AutomationStatus(t *testing.T) {
	setupAPI(t)
	srv := startServer(t)
	t.Setenv("PATH", t.TempDir())

	resp, err := http.Get(srv.URL + "/api/automation")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var avail prober.Availability
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&avail))
	assert.False(t, avail.Available)
	assert.NotEmpty(t, avail.Reason)
}

func TestRouter_UnavailableWithoutHandlers(t *testing.T) {
	srv := startServer(t)

	resp, err := http.Get(srv.URL + "/api/providers")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
