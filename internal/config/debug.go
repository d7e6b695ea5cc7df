package config

import "os"

func IsDebug() bool {
	return os.Getenv("FORMPILOT_DEBUG") == "1"
}
