// Package audit provides structured logging for execution audit trails.
package audit

import "go.uber.org/zap"

var logger *zap.SugaredLogger = zap.NewNop().Sugar()

// SetLogger installs the process-wide audit logger. Called once from the
// composition root; defaults to a no-op logger so packages that import
// audit but run outside app.Build (tests) never panic on a nil logger.
func SetLogger(l *zap.SugaredLogger) {
	if l != nil {
		logger = l
	}
}

// Log writes an audit event. args are alternating key/value pairs, matching
// zap's SugaredLogger field convention, e.g.:
//
//	audit.Log("task_dispatched", "project_id", p.ID, "task_id", t.ID)
func Log(event string, keysAndValues ...interface{}) {
	logger.Infow("[AUDIT] "+event, keysAndValues...)
}
