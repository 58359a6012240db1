package logger

import "strings"

// Severity names as they appear in the level field.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
	LevelFatal = "FATAL"
)

var allowedLevels = map[string]string{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
	"fatal":   LevelFatal,
}

// enumFields lists fields restricted to a closed vocabulary. Values outside it are
// kept for status and dropped for the others.
var enumFields = map[string]struct {
	values map[string]struct{}
	strict bool
}{
	"status":  {values: setOf("ok", "fail", "skip", "retry", "rate_limited", "cancelled")},
	"cache":   {values: setOf("hit", "miss", "expired"), strict: true},
	"outcome": {values: setOf("ok", "fail", "cancelled", "rate_limited"), strict: true},
}

func setOf(values ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

func normalizeLevel(level string) string {
	if level == "" {
		return LevelInfo
	}
	if mapped, ok := allowedLevels[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

// normalizeEnum lowercases v and reports whether the field should be kept.
func normalizeEnum(field, v string) (string, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	spec, ok := enumFields[field]
	if !ok || v == "" {
		return v, v != ""
	}
	if _, known := spec.values[v]; known {
		return v, true
	}
	return v, !spec.strict
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"chat_type",
	"handler",
	"state",
	"next_state",
	"token",
	"op",
	"cb_key",
	"outcome",
	"duration_ms",
	"messages",
	"responses",
	"kb",
	"profile_id",
	"candidates",
	"pass",
	"index",
	"count",
	"cache",
	"lang",
	"username",
	"mode",
	"listen",
	"public_url",
	"http_code",
	"method",
	"api_code",
	"db",
	"host",
	"port",
	"err",
	"err_code",
	"cause",
	"retryable",
	"attempts",
	"backoff_ms",
	"rate_limited",
	"pending_count",
}
