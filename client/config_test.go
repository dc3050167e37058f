package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coreperf-io/coreperf/client/errs"
)

// Ensure NewConfig properly parses config files.
func TestNewConfigFromFile(t *testing.T) {
	config, err := NewConfig("configs/full.yaml")
	require.NoError(t, err)

	require.Equal(t, "abc123", config.APIKey)
	require.Equal(t, "beta", config.Channel)
	require.Equal(t, "https://beta.example.com/api", config.Endpoint)
	require.Equal(t, 10*time.Second, config.Timeout)
	require.Equal(t, "https://beta.example.com", config.Channels["beta"])
	require.Equal(t, "http://localhost:8080", config.Channels["dev"])
	require.Equal(t, defaultProdEndpoint, config.Channels[DefaultChannel])
	require.Equal(t, "/tmp/experiments", config.ExperimentsDir)
	require.Equal(t, []string{"summary", "inst_counts"}, config.ReportTypes)
	require.Equal(t, "r0p4", config.Cores["cortex-a53"])
	require.Equal(t, "r0p1", config.Cores["cortex-m4"])
	require.Equal(t, uint32(5), config.LogLevel)
	require.True(t, config.LogSilent)
	require.NoError(t, config.Validate())
}

// Ensure that default config is loaded.
func TestNewConfigDefault(t *testing.T) {
	config, err := NewConfig("")
	require.NoError(t, err)
	require.Equal(t, DefaultChannel, config.Channel)
	require.Equal(t, defaultTimeout, config.Timeout)
	require.Equal(t, DefaultExperimentsDir, config.ExperimentsDir)
	require.Equal(t, []string{ReportSummary}, config.ReportTypes)
	require.Equal(t, uint32(4), config.LogLevel)
}

// Ensure that both config file and default configs are loaded.
func TestNewConfigDefaultAndFile(t *testing.T) {
	config, err := NewConfig("configs/simple.yaml")
	require.NoError(t, err)
	// Ensure custom configs are loaded
	require.Equal(t, "abc123", config.APIKey)
	require.Equal(t, uint32(3), config.LogLevel)

	// Ensure also default values are loaded at the same time
	require.Equal(t, DefaultChannel, config.Channel)
	require.Equal(t, DefaultExperimentsDir, config.ExperimentsDir)
	endpoint, err := config.ResolveEndpoint()
	require.NoError(t, err)
	require.Equal(t, defaultProdEndpoint, endpoint)
}

// Ensure environment variables override the config file.
func TestNewConfigEnvOverrides(t *testing.T) {
	t.Setenv(envAPIKey, "from-env")
	t.Setenv(envChannel, "dev")
	t.Setenv(envEndpoint, "http://127.0.0.1:9000")

	config, err := NewConfig("configs/full.yaml")
	require.NoError(t, err)
	require.Equal(t, "from-env", config.APIKey)
	require.Equal(t, "dev", config.Channel)
	require.Equal(t, "http://127.0.0.1:9000", config.Endpoint)
}

// Ensure invalid settings and missing files are configuration errors.
func TestNewConfigErrors(t *testing.T) {
	for _, file := range []string{"configs/bad-level.yaml", "configs/bad-timeout.yaml", "configs/missing.yaml"} {
		_, err := NewConfig(file)
		require.Error(t, err, file)
		require.Equal(t, errs.Configuration, errs.KindOf(err), file)
	}
}

// Ensure the endpoint is taken from the channel table unless set explicitly.
func TestResolveEndpoint(t *testing.T) {
	config := NewDefaultConfig()
	config.Channels["beta"] = "https://beta"

	config.Channel = "beta"
	endpoint, err := config.ResolveEndpoint()
	require.NoError(t, err)
	require.Equal(t, "https://beta", endpoint)

	config.Endpoint = "https://override"
	endpoint, err = config.ResolveEndpoint()
	require.NoError(t, err)
	require.Equal(t, "https://override", endpoint)

	config.Endpoint = ""
	config.Channel = "nightly"
	_, err = config.ResolveEndpoint()
	require.Error(t, err)
	require.Equal(t, errs.Configuration, errs.KindOf(err))
}

// Ensure Validate rejects incomplete settings.
func TestConfigValidate(t *testing.T) {
	config := NewDefaultConfig()
	err := config.Validate()
	require.Error(t, err)
	require.Equal(t, errs.Configuration, errs.KindOf(err))
	require.Contains(t, err.Error(), "API key")

	config.APIKey = "key"
	require.NoError(t, config.Validate())

	config.ReportTypes = []string{ReportSummary, "flamegraph"}
	err = config.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "flamegraph")

	config.ReportTypes = nil
	require.Error(t, config.Validate())
}

// Ensure the string form never includes the API key.
func TestConfigString(t *testing.T) {
	config := NewDefaultConfig()
	config.APIKey = "super-secret"
	config.ReportTypes = []string{ReportSummary, ReportInstCounts}
	str := config.String()
	require.NotContains(t, str, "super-secret")
	require.Contains(t, str, defaultProdEndpoint)
	require.Contains(t, str, "summary and inst_counts")
}
