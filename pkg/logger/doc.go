// Package logger provides the structured logging interface used across the crawler.
//
// It wraps zerolog. Console output follows the familiar
// "2006-01-02 15:04:05 LEVEL | message field=value" layout and drops colours when
// stdout is not a terminal; setting a log file switches the file to JSON lines.
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField("component", "proxy")
//	log.InfoWithFields("loaded proxies", map[string]interface{}{"count": 12})
//
// Tests use NewTestLogger to capture entries or NewNopLogger to discard them.
package logger
