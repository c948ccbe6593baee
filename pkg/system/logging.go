package system

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ReqLoggerKey is the context key used to store request-scoped logger in gin context.
const ReqLoggerKey = "reqLogger"

// GetReqLogger returns the request-scoped sugared logger from gin.Context if present,
// otherwise returns the provided fallback sugared logger.
func GetReqLogger(c *gin.Context, fallback *zap.SugaredLogger) *zap.SugaredLogger {
	if c == nil {
		return fallback
	}
	if v, ok := c.Get(ReqLoggerKey); ok {
		if l, ok2 := v.(*zap.SugaredLogger); ok2 {
			return l
		}
	}
	return fallback
}

// RuleTicketFields returns a variadic slice of key/value pairs suitable for
// passing to SugaredLogger.With or Infow/Errorw calls. If ticketID is empty
// it will only include the "rule" key; otherwise it includes both.
func RuleTicketFields(ruleID, ticketID string) []interface{} {
	if ticketID == "" {
		return []interface{}{"rule", ruleID}
	}
	return []interface{}{"rule", ruleID, "ticket", ticketID}
}
