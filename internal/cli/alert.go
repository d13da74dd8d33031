package cli

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	apperrors "trade-alert/internal/errors"
	"trade-alert/internal/models"
	"trade-alert/internal/store"
)

func newAlertCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "alert",
		Aliases: []string{"alerts"},
		Short:   "Manage price alerts",
		Long: `Create, inspect and manage price alerts.

With --user, every command only sees that user's alerts.`,
	}

	cmd.PersistentFlags().String("user", "", "scope to this user id")

	cmd.AddCommand(newAlertCreateCmd(app))
	cmd.AddCommand(newAlertListCmd(app))
	cmd.AddCommand(newAlertGetCmd(app))
	cmd.AddCommand(newAlertUpdateCmd(app))
	cmd.AddCommand(newAlertCancelCmd(app))
	cmd.AddCommand(newAlertDeleteCmd(app))
	cmd.AddCommand(newAlertCountCmd(app))

	return cmd
}

func userFlag(cmd *cobra.Command) string {
	user, _ := cmd.Flags().GetString("user")
	return user
}

func parsePrice(s string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, apperrors.NewValidationError("price", s, "is not a number")
	}
	return price, nil
}

// lookupAlert fetches an alert, scoped to user when set.
func lookupAlert(ctx context.Context, st store.AlertStore, id, user string) (*models.Alert, error) {
	if user != "" {
		return st.GetAlertByUser(ctx, id, user)
	}
	return st.GetAlert(ctx, id)
}

func notFound(id string) error {
	return fmt.Errorf("alert %s: %w", id, apperrors.ErrNotFound)
}

// CreateAlert stores a new alert after enforcing the per-user cap.
// maxPerUser of 0 means unlimited.
func CreateAlert(ctx context.Context, st store.AlertStore, req models.CreateAlertRequest, maxPerUser int) (*models.Alert, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if maxPerUser > 0 {
		count, err := st.CountByUser(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
		if count >= maxPerUser {
			return nil, fmt.Errorf("%w: user %s already has %d alerts", apperrors.ErrAlertLimit, req.UserID, count)
		}
	}
	return st.CreateAlert(ctx, req)
}

func newAlertCreateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <symbol> <above|below> <price>",
		Short: "Create a price alert",
		Example: `  trade-alert alert create AAPL above 150
  trade-alert alert create 000001.SZ below 9.5 --email me@example.com`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			condition, err := models.ParseAlertCondition(args[1])
			if err != nil {
				return err
			}
			price, err := parsePrice(args[2])
			if err != nil {
				return err
			}
			email, _ := cmd.Flags().GetString("email")

			user := userFlag(cmd)
			if user == "" {
				user = app.Config.Alerts.DefaultUser
			}

			st, err := app.Store()
			if err != nil {
				return err
			}

			alert, err := CreateAlert(ctx, st, models.CreateAlertRequest{
				UserID:            user,
				Symbol:            args[0],
				Condition:         condition,
				Price:             price,
				NotificationEmail: email,
			}, app.Config.Alerts.MaxPerUser)
			if err != nil {
				return err
			}

			app.Logger.Info().Str("alert_id", alert.ID).Str("symbol", alert.Symbol).Msg("Alert created")

			if output.IsJSON() {
				return output.JSON(alert)
			}
			output.Success("✓ Alert created")
			output.renderAlert(*alert)
			return nil
		},
	}
	cmd.Flags().String("email", "", "notification email for this alert")
	return cmd
}

func newAlertListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			st, err := app.Store()
			if err != nil {
				return err
			}

			var list []models.Alert
			if user := userFlag(cmd); user != "" {
				list, err = st.ListAlertsByUser(ctx, user)
			} else {
				list, err = st.ListAlerts(ctx)
			}
			if err != nil {
				return err
			}

			if s, _ := cmd.Flags().GetString("status"); s != "" {
				status, err := models.ParseAlertStatus(s)
				if err != nil {
					return err
				}
				list = filterByStatus(list, status)
			}

			if output.IsJSON() {
				return output.JSON(list)
			}
			output.renderAlerts(list)
			return nil
		},
	}
	cmd.Flags().String("status", "", "only show alerts with this status (active, triggered, cancelled)")
	return cmd
}

func filterByStatus(list []models.Alert, status models.AlertStatus) []models.Alert {
	out := make([]models.Alert, 0, len(list))
	for _, a := range list {
		if a.Status == status {
			out = append(out, a)
		}
	}
	return out
}

func newAlertGetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			st, err := app.Store()
			if err != nil {
				return err
			}
			alert, err := lookupAlert(cmd.Context(), st, args[0], userFlag(cmd))
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(alert)
			}
			output.renderAlert(*alert)
			return nil
		},
	}
}

func newAlertUpdateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change an alert's symbol, condition, price or email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			st, err := app.Store()
			if err != nil {
				return err
			}
			existing, err := lookupAlert(ctx, st, args[0], userFlag(cmd))
			if err != nil {
				return err
			}

			req := models.CreateAlertRequest{
				UserID:            existing.UserID,
				Symbol:            existing.Symbol,
				Condition:         existing.Condition,
				Price:             existing.Price,
				NotificationEmail: existing.NotificationEmail,
			}
			flags := cmd.Flags()
			if flags.Changed("symbol") {
				req.Symbol, _ = flags.GetString("symbol")
			}
			if flags.Changed("condition") {
				s, _ := flags.GetString("condition")
				if req.Condition, err = models.ParseAlertCondition(s); err != nil {
					return err
				}
			}
			if flags.Changed("price") {
				s, _ := flags.GetString("price")
				if req.Price, err = parsePrice(s); err != nil {
					return err
				}
			}
			if flags.Changed("email") {
				req.NotificationEmail, _ = flags.GetString("email")
			}

			alert, err := st.UpdateAlert(ctx, existing.ID, req)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(alert)
			}
			output.Success("✓ Alert updated")
			output.renderAlert(*alert)
			return nil
		},
	}
	cmd.Flags().String("symbol", "", "new symbol")
	cmd.Flags().String("condition", "", "new condition (above or below)")
	cmd.Flags().String("price", "", "new target price")
	cmd.Flags().String("email", "", "new notification email (empty to clear)")
	return cmd
}

func newAlertCancelCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel an active alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			st, err := app.Store()
			if err != nil {
				return err
			}
			alert, err := lookupAlert(ctx, st, args[0], userFlag(cmd))
			if err != nil {
				return err
			}

			ok, err := st.UpdateStatus(ctx, alert.ID, models.StatusCancelled)
			if err != nil {
				return err
			}
			if !ok {
				return notFound(alert.ID)
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"id": alert.ID, "status": models.StatusCancelled})
			}
			output.Success("✓ Alert %s cancelled", ShortID(alert.ID))
			return nil
		},
	}
}

func newAlertDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			st, err := app.Store()
			if err != nil {
				return err
			}

			var deleted bool
			if user := userFlag(cmd); user != "" {
				deleted, err = st.DeleteAlertByUser(ctx, args[0], user)
			} else {
				deleted, err = st.DeleteAlert(ctx, args[0])
			}
			if err != nil {
				return err
			}
			if !deleted {
				return notFound(args[0])
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"id": args[0], "deleted": true})
			}
			output.Success("✓ Alert %s deleted", ShortID(args[0]))
			return nil
		},
	}
}

func newAlertCountCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Count a user's alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			user := userFlag(cmd)
			if user == "" {
				user = app.Config.Alerts.DefaultUser
			}

			st, err := app.Store()
			if err != nil {
				return err
			}
			count, err := st.CountByUser(cmd.Context(), user)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"user_id": user, "count": count})
			}
			output.Printf("%s: %d alerts\n", user, count)
			if max := app.Config.Alerts.MaxPerUser; max > 0 {
				output.Dim("Limit: %d", max)
			}
			return nil
		},
	}
}
