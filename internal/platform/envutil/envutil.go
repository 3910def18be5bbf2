package envutil

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

func String(key, def string, log *logger.Logger) string {
	val, ok := lookup(key)
	if !ok {
		debugDefault(log, key, def)
		return def
	}
	return val
}

func Int(key string, def int, log *logger.Logger) int {
	raw, ok := lookup(key)
	if !ok {
		debugDefault(log, key, def)
		return def
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		if log != nil {
			log.Debug("Environment variable could not be parsed as int, using default", "env_var", key, "provided", raw, "default", def)
		}
		return def
	}
	return i
}

func Float(key string, def float64, log *logger.Logger) float64 {
	raw, ok := lookup(key)
	if !ok {
		debugDefault(log, key, def)
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		if log != nil {
			log.Debug("Environment variable could not be parsed as float, using default", "env_var", key, "provided", raw, "default", def)
		}
		return def
	}
	return f
}

func Bool(key string, def bool, log *logger.Logger) bool {
	raw, ok := lookup(key)
	if !ok {
		debugDefault(log, key, def)
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

// Duration accepts Go duration strings ("90s", "30m"); a bare integer is read as seconds.
func Duration(key string, def time.Duration, log *logger.Logger) time.Duration {
	raw, ok := lookup(key)
	if !ok {
		debugDefault(log, key, def)
		return def
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		if log != nil {
			log.Debug("Environment variable could not be parsed as duration, using default", "env_var", key, "provided", raw, "default", def)
		}
		return def
	}
	return d
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	return v, true
}

func debugDefault(log *logger.Logger, key string, def interface{}) {
	if log != nil {
		log.Debug("Environment variable not found, using default", "env_var", key, "default", def)
	}
}
