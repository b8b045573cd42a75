package log

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetLogger() {
	baseLogger = zerolog.New(os.Stderr)
	baseLevel = zerolog.InfoLevel
	viperConf = viper.New()
	isLogInit = false
}

func writeConfig(t *testing.T, text string) {
	path := filepath.Join(t.TempDir(), "seqlog.toml")
	require.NoError(t, os.WriteFile(path, []byte(text), 0600))
	t.Setenv(confEnvPrefix+"_"+confFilePathKey, path)
}

func newCleanLogger(t *testing.T, configText string, moduleName string) *Logger {
	resetLogger()
	writeConfig(t, configText)
	return NewLogger(moduleName)
}

func tempFileName(t *testing.T, pattern string) string {
	f, err := os.CreateTemp(t.TempDir(), pattern)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	name, err := filepath.Abs(f.Name())
	require.NoError(t, err)
	return filepath.ToSlash(name)
}

func TestDefaultConfig(t *testing.T) {
	resetLogger()
	logger := Default()
	assert.Equal(t, "info", logger.Level())
	assert.Empty(t, logger.Name())
}

func TestBasicLevel(t *testing.T) {
	logger := newCleanLogger(t, `
	level = "error"
	`, "test_logger")

	assert.Equal(t, "error", logger.Level())
	assert.Equal(t, "test_logger", logger.Name())
}

func TestSubLevel(t *testing.T) {
	logger := newCleanLogger(t, `
	level = "error"

	[coordinator]
	level = "warn"
	`, "coordinator")

	assert.Equal(t, "error", Default().Level())
	assert.Equal(t, "warn", logger.Level())
	assert.Equal(t, "error", NewLogger("publisher").Level())
}

func TestIsDebugEnabled(t *testing.T) {
	logger := newCleanLogger(t, `
	level = "warn"
	`, "info_logger")
	assert.False(t, logger.IsDebugEnabled())

	logger = newCleanLogger(t, `
	level = "debug"
	`, "debug_logger")
	assert.True(t, logger.IsDebugEnabled())

	assert.False(t, Nop().IsDebugEnabled())
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	logger := newCleanLogger(t, `
	level = "loud"
	`, "m")
	assert.Equal(t, "info", logger.Level())
}

func TestGetOutput(t *testing.T) {
	fileName := tempFileName(t, "testfilelog")

	tests := []struct {
		name    string
		arg     string
		wantOut *os.File
		wantErr bool
	}{
		{"Empty", "", nil, true},
		{"Stdout", "stdout", os.Stdout, false},
		{"Stderr", "stderr", os.Stderr, false},
		{"CustomFile", fileName, nil, false},
		{"CantCreate", "no/where/dir/nofile.log", nil, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := getOutput(test.arg)
			if test.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if test.wantOut != nil {
				assert.Equal(t, test.wantOut, got)
			}
		})
	}
}

func TestFileOutByModule(t *testing.T) {
	baseLogName := tempFileName(t, "test_basefile")
	m1LogName := tempFileName(t, "test_subfile1")
	m2LogName := tempFileName(t, "test_subfile2")

	newCleanLogger(t, fmt.Sprintf(`
out = "%s"
level = "info"

[m1]
out = "%s"

[m2]
out = "%s"`, baseLogName, m1LogName, m2LogName), "m1")

	NewLogger("m1").Info().Msg("sub1 write")
	NewLogger("m1").Info().Msg("sub1_1 write")
	NewLogger("m2").Info().Msg("sub2 write")
	// modules without a section inherit the base output
	NewLogger("other_m").WithField("run", "r1").Info().Msg("other write")

	baseContent, err := os.ReadFile(baseLogName)
	require.NoError(t, err)
	assert.Contains(t, string(baseContent), "other write")
	assert.Contains(t, string(baseContent), `"run":"r1"`)

	m1Content, err := os.ReadFile(m1LogName)
	require.NoError(t, err)
	assert.Contains(t, string(m1Content), "sub1 write")
	assert.Contains(t, string(m1Content), "sub1_1 write")

	m2Content, err := os.ReadFile(m2LogName)
	require.NoError(t, err)
	assert.Contains(t, string(m2Content), "sub2 write")
	assert.NotContains(t, string(m2Content), "sub1 write")
}
