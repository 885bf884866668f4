// Package logging configures the structured logger used across webmocket.
//
// It wraps log/slog so every component logs the same way. Components accept
// a *slog.Logger in their constructor; when none is given they fall back to
// Nop().
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.ParseLevel("debug"),
//	    Format: logging.FormatJSON,
//	})
//	logger.Info("client to server", "session", id, "text", msg)
//
// Levels are debug, info, warn and error. Formats are text (default) and
// json.
package logging
