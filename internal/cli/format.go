package cli

import (
	"time"

	"trade-alert/internal/models"
	"trade-alert/pkg/utils"
)

const timeLayout = "2006-01-02 15:04:05"

// FormatTime formats a timestamp in local time, or "-" when unset.
func FormatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

// ShortID returns the first eight characters of an alert id.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// FormatCondition renders "above $150.00".
func FormatCondition(a models.Alert) string {
	return string(a.Condition) + " " + utils.FormatPrice(a.Symbol, a.Price)
}

// alertRow is the table row for one alert.
func (o *Output) alertRow(a models.Alert) []string {
	created := a.CreatedAt
	return []string{
		ShortID(a.ID),
		a.Symbol,
		FormatCondition(a),
		o.Status(a.Status),
		a.UserID,
		FormatTime(&created),
		FormatTime(a.TriggeredAt),
	}
}

var alertHeaders = []string{"ID", "SYMBOL", "CONDITION", "STATUS", "USER", "CREATED", "TRIGGERED"}

// renderAlerts prints alerts as a table.
func (o *Output) renderAlerts(alerts []models.Alert) {
	if len(alerts) == 0 {
		o.Dim("No alerts")
		return
	}
	table := NewTable(o, alertHeaders...)
	for _, a := range alerts {
		table.AddRow(o.alertRow(a)...)
	}
	table.Render()
}

// renderAlert prints one alert in detail.
func (o *Output) renderAlert(a models.Alert) {
	market := utils.DetectMarket(a.Symbol)
	created := a.CreatedAt
	updated := a.UpdatedAt

	o.Bold("Alert %s", a.ID)
	o.Printf("  Symbol:     %s (%s)\n", a.Symbol, market.DisplayName())
	o.Printf("  Condition:  %s\n", FormatCondition(a))
	o.Printf("  Status:     %s\n", o.Status(a.Status))
	o.Printf("  User:       %s\n", a.UserID)
	if a.NotificationEmail != "" {
		o.Printf("  Email:      %s\n", a.NotificationEmail)
	}
	o.Printf("  Created:    %s\n", FormatTime(&created))
	o.Printf("  Updated:    %s\n", FormatTime(&updated))
	o.Printf("  Triggered:  %s\n", FormatTime(a.TriggeredAt))
}

// renderBars prints price history rows.
func (o *Output) renderBars(symbol string, bars []models.PriceBar) {
	if len(bars) == 0 {
		o.Dim("No price history for %s", symbol)
		return
	}
	table := NewTable(o, "DATE", "CLOSE", "VOLUME", "RECORDED")
	for _, b := range bars {
		created := b.CreatedAt
		table.AddRow(
			b.Date,
			utils.FormatPrice(b.Symbol, b.Close),
			utils.FormatVolume(b.Volume),
			FormatTime(&created),
		)
	}
	table.Render()
}
