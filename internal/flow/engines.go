package flow

import (
	"grantor/internal/prober"
	"grantor/internal/registry"
	"grantor/internal/session"
	"grantor/pkg/oauth"
)

// Engines builds the full strategy-to-engine binding for the supervisor.
// openBrowser may be nil to use the system default browser.
func Engines(client *oauth.Client, p *prober.Prober, openBrowser BrowserOpener) map[registry.AcquisitionStrategy]session.Engine {
	return map[registry.AcquisitionStrategy]session.Engine{
		registry.StrategyDeviceCode:       NewDeviceCodeEngine(client),
		registry.StrategyCallback:         NewCallbackEngine(client, openBrowser),
		registry.StrategyAutomatedBrowser: NewAutomatedBrowserEngine(client, p),
		registry.StrategyLocalFileImport:  NewLocalFileImportEngine(),
		registry.StrategyPastedSecret:     NewPastedSecretEngine(),
	}
}
