// Package logging builds the process logger on top of log/slog.
//
// # Overview
//
//   - JSON, text and console output formats
//   - A redacting handler that masks secrets such as connect passwords,
//     detach keys and pool credentials
//   - A level that can be changed at runtime (used by config hot reload)
//   - Context helpers carrying the request ID and a scoped logger
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	    Redact: true,
//	})
//	if err != nil {
//	    return err
//	}
//	slog.SetDefault(logger.Logger)
//
//	logger.Info("main loop started", "connect_password", pw) // connect_password=***
//
//	// Later, from a config reload
//	_ = logger.SetLevel("debug")
package logging
