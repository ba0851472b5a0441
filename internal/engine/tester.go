package engine

import (
	"github.com/danielolaszy/bridge/internal/logging"
	"github.com/danielolaszy/bridge/pkg/models"
)

// TestConnections probes both trackers with the supplied settings and
// reports per-side results. Each side is tested independently: a
// failure on one never blocks or hides the other, and the tester never
// returns an error. Settings are an explicit parameter so unsaved
// values can be probed.
func (e *Engine) TestConnections(settings *models.JiraSettings) models.ConnectionTestResult {
	var result models.ConnectionTestResult

	result.CloudOK, result.CloudError = e.testSide(models.SideCloud, settings)
	result.OnPremOK, result.OnPremError = e.testSide(models.SideOnPrem, settings)

	logging.Info("connection test finished",
		"cloud_ok", result.CloudOK,
		"onprem_ok", result.OnPremOK)

	return result
}

func (e *Engine) testSide(side models.TrackerSide, settings *models.JiraSettings) (bool, string) {
	client, err := e.factory(side, settings)
	if err != nil {
		return false, err.Error()
	}
	if err := client.Test(); err != nil {
		return false, err.Error()
	}
	return true, ""
}
