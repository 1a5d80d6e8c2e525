// edgewall/tools/rules_deploy/rules_deploy_main_test.go

package main

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgewall/pkg/compiler"
)

func TestParseFlags(t *testing.T) {
	cfg := parseFlags([]string{})
	assert.Equal(t, "rules.json", cfg.InputFile)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "rules_packed", cfg.Key)
	assert.Equal(t, "edgewall_updates", cfg.Channel)

	cfg = parseFlags([]string{"-input", "prod.json", "-redis", "redis.internal:6379", "-db", "3"})
	assert.Equal(t, "prod.json", cfg.InputFile)
	assert.Equal(t, "redis.internal:6379", cfg.RedisAddr)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestPackJSONLoads(t *testing.T) {
	jsonData := []byte(`{"nodes":[{"id":"req","type":"request"}],"edges":[]}`)

	packed, err := packJSON(jsonData)
	require.NoError(t, err)

	g, err := compiler.Load([]byte(packed))
	require.NoError(t, err)
	assert.Equal(t, "req", g.Request)
}

func TestDeploy(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	cfg := &deployConfig{Key: "rules_packed", Channel: "edgewall_updates"}

	packed, err := packJSON([]byte(`{"nodes":[{"id":"req","type":"request"}],"edges":[]}`))
	require.NoError(t, err)

	require.NoError(t, deploy(rdb, cfg, packed))

	stored, err := s.Get("rules_packed")
	require.NoError(t, err)
	assert.Equal(t, packed, stored)
}
