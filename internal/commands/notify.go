package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"
)

// dashboardNotifyURL is the dashboard's internal ingress for CLI-originated
// change notifications. The dashboard always listens on the
// fixed port regardless of which project it was started for; a notification
// sent while no dashboard is running is expected to fail silently.
const dashboardNotifyURL = "http://127.0.0.1:11391/api/internal/cli-notify"

// dashboardNotifyTimeout bounds how long a mutating command will wait on
// the dashboard before giving up. Dropped notifications never affect
// correctness of stored data.
const dashboardNotifyTimeout = 100 * time.Millisecond

// notifyDashboard best-effort informs a running dashboard that something
// changed, so its WebSocket clients can refresh without polling. Disabled
// entirely via IE_DISABLE_DASHBOARD_NOTIFICATIONS, and never
// allowed to affect the calling command's exit code or output.
func notifyDashboard(eventType string, payload map[string]any) {
	if os.Getenv("IE_DISABLE_DASHBOARD_NOTIFICATIONS") != "" {
		return
	}

	body, err := json.Marshal(map[string]any{
		"type":    eventType,
		"payload": payload,
	})
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dashboardNotifyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dashboardNotifyURL, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: dashboardNotifyTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return
	}
	_ = resp.Body.Close()
}
