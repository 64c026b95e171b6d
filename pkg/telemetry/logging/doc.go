/*
Package logging provides structured logging for ZaiGate built on log/slog.

The package configures a process-wide slog.Logger from telemetry
configuration, carries request-scoped fields through context, and redacts
credentials before they reach log output.

Setup:

	logger, err := logging.New(cfg.Telemetry.Logging)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

Credential Redaction:

Bearer tokens and account emails must never appear verbatim in logs. Use the
redaction helpers when logging credential material:

	logger.Info("token refreshed",
		"account", logging.RedactEmail(acct.Email),
		"token", logging.RedactToken(tok),
	)
*/
package logging
