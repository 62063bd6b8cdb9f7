package ratelimit

import "strconv"

// formatInt evita fmt para os valores numéricos dos headers X-RateLimit-*.
func formatInt(v int64) string { return strconv.FormatInt(v, 10) }
