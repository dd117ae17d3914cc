package config

import (
	"os"
	"strconv"
)

// applyEnvironment overlays STRATA_* environment variables onto the
// config. Environment values win over file values; unset variables
// leave the config untouched. Malformed numeric or boolean values are
// ignored rather than failing startup.
func (c *Config) applyEnvironment() {
	envString(&c.Mode, "STRATA_MODE")
	envString(&c.Server.Addr, "STRATA_ADDR")
	envBool(&c.Server.Debug, "STRATA_DEBUG")
	envString(&c.Database.Host, "STRATA_DB_HOST")
	envInt(&c.Database.Port, "STRATA_DB_PORT")
	envString(&c.Database.Name, "STRATA_DB_NAME")
	envString(&c.Database.User, "STRATA_DB_USER")
	envString(&c.Database.Password, "STRATA_DB_PASSWORD")
	envString(&c.Database.SSLMode, "STRATA_DB_SSLMODE")
	envInt(&c.Database.PoolSize, "STRATA_DB_POOL_SIZE")
	envString(&c.Layers.Path, "STRATA_LAYERS_PATH")
	envString(&c.Attachments.BasePath, "STRATA_ATTACHMENTS_PATH")
	envString(&c.Export.Dir, "STRATA_EXPORT_DIR")
	envBool(&c.Logging.Queries, "STRATA_LOG_QUERIES")
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envBool(dst *bool, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if parsed, err := strconv.ParseBool(v); err == nil {
		*dst = parsed
	}
}

func envInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if parsed, err := strconv.Atoi(v); err == nil {
		*dst = parsed
	}
}
