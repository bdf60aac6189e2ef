package env

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	z "github.com/Oudwins/zog"
	"github.com/Oudwins/zog/zenv"
)

type EnvStruct struct {
	HOME         string `zog:"HOME"`
	PORT         int    `zog:"WOCS_PORT"`
	HOST         string `zog:"WOCS_HOST"`
	VERIFY_TOKEN string `zog:"WOCS_VERIFY_TOKEN"`
	QUEUE_URL    string `zog:"WOCS_QUEUE_URL"`
	DATA_DIR     string `zog:"WOCS_DATA_DIR"`
	LOG_LEVEL    string `zog:"WOCS_LOG_LEVEL"`
	LISTEN_ADDR  string
	LISTEN_PROT  string
	BASE_URL     string
}

var env *EnvStruct

var LogLevels = []string{"debug", "info", "warn", "error"}

var EnvSchema = z.Struct(z.Shape{
	"HOME":         z.String().Optional(),
	"PORT":         z.Int().Default(8787).GTE(1).LTE(65535),
	"HOST":         z.String().Default("localhost"),
	"VERIFY_TOKEN": z.String().Optional(),
	"QUEUE_URL":    z.String().Optional().Trim(),
	"DATA_DIR":     z.String().Default("~/.wocs").Transform(expandPathTransform),
	"LOG_LEVEL":    z.String().Default("info").Trim().OneOf(LogLevels, z.Message("WOCS_LOG_LEVEL must be one of debug, info, warn, error")),
})

// Load reads the process environment without caching.
func Load() (*EnvStruct, error) {
	parsed := &EnvStruct{}
	if issues := EnvSchema.Parse(zenv.NewDataProvider(), parsed); len(issues) > 0 {
		return nil, fmt.Errorf("invalid environment: %s", z.Issues.FlattenAndCollect(issues))
	}

	parsed.LISTEN_PROT = "http://"
	parsed.LISTEN_ADDR = parsed.HOST + ":" + strconv.Itoa(parsed.PORT)
	parsed.BASE_URL = parsed.LISTEN_PROT + parsed.LISTEN_ADDR
	return parsed, nil
}

func Get() *EnvStruct {
	if env == nil {
		parsed, err := Load()
		if err != nil {
			log.Fatal("[WOCS] Failed to parse environment variables: ", err)
		}
		env = parsed
	}
	return env
}

func expandPathTransform(ptr *string, c z.Ctx) error {
	expanded, err := ExpandPath(*ptr)
	*ptr = expanded
	return err
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
