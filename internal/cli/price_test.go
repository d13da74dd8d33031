package cli

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

// sinaReply is a minimal 32-field quote with the price at field 3 and the
// volume at field 8.
func sinaReply(code, price string) string {
	fields := make([]string, 32)
	for i := range fields {
		fields[i] = "0"
	}
	fields[0] = "PingAn"
	fields[3] = price
	fields[8] = "1200"
	return fmt.Sprintf("var hq_str_%s=\"%s\";\n", code, strings.Join(fields, ","))
}

func TestPriceFetchEvaluateListsTriggeredAlerts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sinaReply("sz000001", "12.50"))
	}))
	defer srv.Close()

	t.Setenv("TRADE_ALERT_SOURCES__SINA_URL", srv.URL+"/list=")
	t.Setenv("TRADE_ALERT_NOTIFICATIONS__ENABLED", "false")
	dir := t.TempDir()

	out, err := runCLI(t, dir, "alert", "create", "000001.SZ", "above", "12", "--json")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("create output %q: %v", out, err)
	}

	out, err = runCLI(t, dir, "price", "fetch", "000001.sz", "--evaluate", "--json")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	var res struct {
		Price     string `json:"price"`
		Source    string `json:"source"`
		Triggered int    `json:"triggered"`
		Alerts    []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"alerts"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("fetch output %q: %v", out, err)
	}
	if res.Price != "12.5" || res.Source != "sina" {
		t.Errorf("sample = %+v", res)
	}
	if res.Triggered != 1 || len(res.Alerts) != 1 || res.Alerts[0].ID != created.ID || res.Alerts[0].Status != "triggered" {
		t.Errorf("triggered alerts = %+v, want %s", res.Alerts, created.ID)
	}
}
