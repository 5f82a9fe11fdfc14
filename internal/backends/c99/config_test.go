package c99

import (
	"os/exec"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfigNamePositive(t *testing.T) {
	// Given
	paths := []string{
		"gcc",
		"clang",
	}
	var expectedPrefix string
	if runtime.GOARCH == "amd64" {
		expectedPrefix = "x86_64-"
	} else {
		expectedPrefix = ""
	}

	for _, name := range paths {
		if _, err := exec.LookPath(name); err != nil {
			t.Logf("%v is not installed", name)
			continue
		}
		// When
		resultName, err := getConfigName(name)

		// Then
		require.NoError(t, err)
		if !(strings.HasPrefix(resultName, expectedPrefix) && strings.HasSuffix(resultName, "-"+name+".json")) {
			t.Errorf("getConfigName(" + name + ") returned a malformed result:\n" + resultName)
		}
	}
}

func TestGetConfigNameNegative(t *testing.T) {
	// Given
	name := "ThisIsNotAValidGCCName"

	// When
	_, err := getConfigName(name)

	// Then
	assert.Error(t, err, "The construction of a configuration name should have failed for an invalid compiler!")
}

func TestGetCompilerProjectPositive(t *testing.T) {
	// Given
	paths := []string{
		"gcc",
		"clang",
		"/usr/bin/gcc",
		"/usr/bin/clang",
		"arm-linux-gnueabi-gcc",
	}
	expectedResults := []string{
		"gcc",
		"clang",
		"gcc",
		"clang",
		"gcc",
	}

	for i, name := range paths {
		// When
		resultName, err := getCompilerProject(name)

		// Then
		require.NoError(t, err)
		assert.Equal(t, expectedResults[i], resultName, "getCompilerProject(%v)", name)
	}
}

func TestGetGetCompilerProjectNegative(t *testing.T) {
	// Given
	name := "ThisIsNotAValidCompilerName"

	// When
	_, err := getCompilerProject(name)

	// Then
	assert.Error(t, err, "getCompilerProject() should only match supported compilers!")
}

func TestCheckConfigPositive(t *testing.T) {
	// Given
	config := Config{}
	config.Default()

	// When
	warn, err := config.CheckConfig()

	// Then
	if warn != nil || err != nil {
		t.Errorf("CheckConfig() should not return warnings or errors on the default config.")
	}
}

func TestCheckConfigWarning(t *testing.T) {
	// Given
	config := Config{}
	config.Default()
	config.Compiler.RequiredFlags = "invalid"

	// When
	warn, err := config.CheckConfig()

	// Then
	if err != nil {
		t.Errorf("CheckConfig() should not return an error on soft issues in valid configurations.")
	}
	if warn == nil {
		t.Errorf("CheckConfig() should return warnings on soft issues in configurations.")
	}
}

func TestCheckConfigMissingCompiler(t *testing.T) {
	config := Config{}
	_, err := config.CheckConfig()
	assert.Error(t, err)
}

func TestBackendSaltTracksResolvedConfig(t *testing.T) {
	// Given
	a := &Backend{}
	a.config.Default()
	b := &Backend{}
	b.config.Default()

	// Then
	assert.Equal(t, a.Salt(), b.Salt())

	b.config.Compiler.ReleaseFlags = "-O3"
	assert.NotEqual(t, a.Salt(), b.Salt())

	b.config.Default()
	b.targetFlags = []string{"-m32"}
	assert.NotEqual(t, a.Salt(), b.Salt())
}
