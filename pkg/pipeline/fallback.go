package pipeline

import (
	"strings"
)

// degradedNotice prefixes every fallback response so users know the answer
// did not come from the model.
const degradedNotice = "The assistant is temporarily operating in a degraded mode, so this is general guidance rather than a tailored answer.\n\n"

// fallbackRoute maps message keywords to canned guidance served while every
// upstream provider's breaker is open.
type fallbackRoute struct {
	name     string
	keywords []string
	response string
}

var fallbackRoutes = []fallbackRoute{
	{
		name:     "sql_analysis",
		keywords: []string{"select", "insert", "update", "delete", "join", "sql", "query"},
		response: "I can analyze your SQL query. Please share the complete query and describe the performance issue, and try again in a few minutes.",
	},
	{
		name:     "execution_plan",
		keywords: []string{"explain", "execution plan", "query plan"},
		response: "I can interpret your execution plan. Please keep the complete plan output handy and try again shortly.",
	},
	{
		name:     "troubleshooting",
		keywords: []string{"error", "fail", "crash", "refused", "timeout", "cannot connect"},
		response: "I can help troubleshoot your database issue. Note the exact error message and system details and retry shortly.",
	},
	{
		name:     "performance",
		keywords: []string{"slow", "performance", "latency", "optimize", "tuning"},
		response: "I can help optimize performance. Please collect the symptoms and any available metrics and try again in a few minutes.",
	},
	{
		name:     "architecture",
		keywords: []string{"architecture", "design", "schema", "scaling", "replication"},
		response: "I can help with database architecture design. Please describe your requirements and constraints and retry shortly.",
	},
}

const fallbackDefault = "I'm here to help with your database needs. Please try again in a few minutes."

// responder produces deterministic rule-based answers without calling any
// upstream provider.
type responder struct{}

// respond returns the canned guidance for the message and the name of the
// route that matched.
func (responder) respond(text string) (string, string) {
	lowered := strings.ToLower(text)
	for _, route := range fallbackRoutes {
		for _, keyword := range route.keywords {
			if strings.Contains(lowered, keyword) {
				return degradedNotice + route.response, route.name
			}
		}
	}
	return degradedNotice + fallbackDefault, "general"
}
