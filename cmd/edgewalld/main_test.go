// edgewall/cmd/edgewalld/main_test.go

package main

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgewall/pkg/runtime"
	"edgewall/pkg/store"
)

const minimalGraph = `{"nodes":[{"id":"req","type":"request"}],"edges":[]}`

func packRaw(jsonData string) string {
	return "raw:" + base64.StdEncoding.EncodeToString([]byte(jsonData))
}

func TestParseConfig(t *testing.T) {
	viper.Reset()

	configFile, err := os.CreateTemp("", "edgewall_config*.json")
	require.NoError(t, err)
	defer os.Remove(configFile.Name())

	configContent := `{
		"logging.level": "debug",
		"logging.output": "stderr",
		"rules.source": "file",
		"rules.file": "/var/lib/edgewall/rules.packed",
		"redis.address": "localhost:6380",
		"redis.password": "secret",
		"redis.database": 2,
		"engine.fail_closed": true,
		"edge_auth.secret": "hunter2",
		"edge_auth.pop": "IAD",
		"dashboard.port": 9090
	}`
	_, err = configFile.WriteString(configContent)
	require.NoError(t, err)
	configFile.Close()

	config, err := parseConfig([]string{"edgewalld", "--config", configFile.Name()})
	require.NoError(t, err)

	assert.Equal(t, "debug", config.LogLevel)
	assert.Equal(t, "file", config.RulesSource)
	assert.Equal(t, "/var/lib/edgewall/rules.packed", config.RulesFile)
	assert.Equal(t, "localhost:6380", config.RedisAddress)
	assert.Equal(t, "secret", config.RedisPass)
	assert.Equal(t, 2, config.RedisDB)
	assert.True(t, config.FailClosed)
	assert.Equal(t, "hunter2", config.EdgeAuthSecret)
	assert.Equal(t, "IAD", config.EdgeAuthPOP)
	assert.Equal(t, 9090, config.DashboardPort)

	// Defaults fill in everything the file omits.
	assert.Equal(t, "rules_packed", config.RulesKey)
	assert.Equal(t, "edgewall_updates", config.RulesChannel)
	assert.Equal(t, 5, config.EdgeAuthTolerance)
	assert.True(t, config.DashboardEnabled)
}

func TestParseConfigDefaults(t *testing.T) {
	viper.Reset()

	config, err := parseConfig([]string{"edgewalld"})
	require.NoError(t, err)

	assert.Equal(t, "info", config.LogLevel)
	assert.Equal(t, "redis", config.RulesSource)
	assert.Equal(t, "localhost:6379", config.RedisAddress)
	assert.False(t, config.FailClosed)
	assert.Equal(t, 8090, config.DashboardPort)
}

func TestSetupDependenciesFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.packed")
	require.NoError(t, os.WriteFile(path, []byte(packRaw(minimalGraph)), 0o644))

	config := &Config{
		RulesSource:   "file",
		RulesFile:     path,
		DashboardPort: 0,
	}

	deps, err := setupDependencies(config)
	require.NoError(t, err)
	defer deps.Source.Close()

	require.NotNil(t, deps.Engine.Graph())
	assert.Equal(t, "req", deps.Engine.Graph().Request)
}

func TestSetupDependenciesRejectsBadPayload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.packed")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	_, err := setupDependencies(&Config{RulesSource: "file", RulesFile: path})
	assert.Error(t, err, "a broken payload at boot is fatal")
}

func TestSetupDependenciesUnknownSource(t *testing.T) {
	_, err := setupDependencies(&Config{RulesSource: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestLoadRulesKeepsPreviousGraphOnFailure(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	s.Set("rules_packed", packRaw(minimalGraph))
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	source := store.NewRedisSourceFromClient(client, "rules_packed", "edgewall_updates")
	defer source.Close()

	metrics := runtime.NewMetrics(prometheus.NewRegistry())
	engine := runtime.NewEngine(nil, runtime.Options{Metrics: metrics})

	require.NoError(t, loadRules(engine, source, metrics))
	good := engine.Graph()
	require.NotNil(t, good)

	// A corrupt deploy must not displace the active graph.
	s.Set("rules_packed", "raw:not-base64!!!")
	assert.Error(t, loadRules(engine, source, metrics))
	assert.Same(t, good, engine.Graph())
}

func TestMainLoopReloadsOnNotify(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	s.Set("rules_packed", packRaw(minimalGraph))
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	source := store.NewRedisSourceFromClient(client, "rules_packed", "edgewall_updates")
	defer source.Close()

	metrics := runtime.NewMetrics(prometheus.NewRegistry())
	engine := runtime.NewEngine(nil, runtime.Options{Metrics: metrics})
	require.NoError(t, loadRules(engine, source, metrics))
	first := engine.Graph()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runMainLoop(ctx, &Dependencies{Source: source, Engine: engine, Metrics: metrics}, &Config{})
	}()

	// Deploy a new payload and notify; the loop should swap the graph.
	blocking := `{
		"nodes": [
			{"id": "req", "type": "request"},
			{"id": "block", "type": "action", "data": {"action": "block"}}
		],
		"edges": [
			{"id": "e1", "source": "req", "sourceHandle": "request", "target": "block", "targetHandle": "trigger"}
		]
	}`
	s.Set("rules_packed", packRaw(blocking))
	require.Eventually(t, func() bool {
		n, err := client.Publish(context.Background(), "edgewall_updates", "deploy").Result()
		return err == nil && n > 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		g := engine.Graph()
		return g != first && len(g.Nodes) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("main loop did not stop on context cancel")
	}
}
