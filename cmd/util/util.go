// Package util binds the gateway's configuration keys to cobra flags and
// STARGATE_* environment variables, and prepares config files for tests.
package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/stargate-gql/stargate/pkg/testutils"
)

const (
	EnvPrefix      = "STARGATE"
	ConfigFileName = "config.yaml"
)

// ConfigPaths are searched in order for ConfigFileName.
var ConfigPaths = []string{"/etc/stargate", "$HOME/.stargate", "."}

// MustBindPFlag attempts to bind a specific key to a pflag (as used by cobra) and panics
// if the binding fails with a non-nil error.
func MustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic("failed to bind pflag: " + err.Error())
	}
}

func MustBindEnv(input ...string) {
	if err := viper.BindEnv(input...); err != nil {
		panic("failed to bind env key: " + err.Error())
	}
}

// MustBindKey binds a config key to the named flag and to the environment
// variables returned by EnvNames.
func MustBindKey(flags *pflag.FlagSet, key, flagName string) {
	MustBindPFlag(key, flags.Lookup(flagName))
	MustBindEnv(append([]string{key}, EnvNames(key)...)...)
}

// EnvNames returns the environment variables a config key is read from. The
// first splits camelCase words with underscores
// (http.corsAllowedOrigins -> STARGATE_HTTP_CORS_ALLOWED_ORIGINS); the second,
// only present for camelCase keys, is the name viper derives on its own
// (STARGATE_HTTP_CORSALLOWEDORIGINS).
func EnvNames(key string) []string {
	var words strings.Builder
	for _, r := range key {
		switch {
		case r == '.' || r == '-':
			words.WriteRune('_')
		case unicode.IsUpper(r):
			words.WriteRune('_')
			words.WriteRune(r)
		default:
			words.WriteRune(unicode.ToUpper(r))
		}
	}

	names := []string{EnvPrefix + "_" + words.String()}

	plain := EnvPrefix + "_" + strings.NewReplacer(".", "_", "-", "_").Replace(strings.ToUpper(key))
	if plain != names[0] {
		names = append(names, plain)
	}
	return names
}

// PrepareTempConfigDir points $HOME at a temporary directory and returns the
// $HOME/.stargate directory inside it. The test fails if a config file in one
// of the other ConfigPaths would be picked up instead.
func PrepareTempConfigDir(t *testing.T) string {
	t.Helper()

	for _, dir := range ConfigPaths {
		if strings.HasPrefix(dir, "$HOME") {
			continue
		}
		_, err := os.Stat(filepath.Join(dir, ConfigFileName))
		require.ErrorIs(t, err, os.ErrNotExist, "Config file in %s would disturb test result.", dir)
	}

	homedir := t.TempDir()
	t.Setenv("HOME", homedir)

	confdir := filepath.Join(homedir, ".stargate")
	require.NoError(t, os.Mkdir(confdir, 0750))

	return confdir
}

// PrepareTempConfigFile writes config as the gateway's config file and
// returns its path. A config without a manifest section gets one pointing
// at a temporary hello manifest, so the gateway can start from it.
func PrepareTempConfigFile(t *testing.T, config string) string {
	t.Helper()

	if !hasTopLevelKey(config, "manifest") {
		if config != "" && !strings.HasSuffix(config, "\n") {
			config += "\n"
		}
		config += "manifest:\n    path: " + testutils.WriteManifest(t, testutils.HelloManifest) + "\n"
	}

	confFile := filepath.Join(PrepareTempConfigDir(t), ConfigFileName)
	require.NoError(t, os.WriteFile(confFile, []byte(config), 0o600))

	return confFile
}

func hasTopLevelKey(config, key string) bool {
	for _, line := range strings.Split(config, "\n") {
		if strings.HasPrefix(line, key+":") {
			return true
		}
	}
	return false
}
