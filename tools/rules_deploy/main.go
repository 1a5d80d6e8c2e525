// edgewall/tools/rules_deploy/main.go

// rules_deploy packs a graph JSON file, validates it, writes it into the
// Redis rule key, and publishes the deploy notification the engine
// listens for. It is the reference deploy path for non-CI pushes.
package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"edgewall/pkg/compiler"
)

var ctx = context.Background()

type deployConfig struct {
	InputFile string
	RedisAddr string
	RedisPass string
	RedisDB   int
	Key       string
	Channel   string
}

func parseFlags(args []string) *deployConfig {
	fs := flag.NewFlagSet("rules_deploy", flag.ExitOnError)
	cfg := &deployConfig{}
	fs.StringVar(&cfg.InputFile, "input", "rules.json", "Graph JSON file to deploy")
	fs.StringVar(&cfg.RedisAddr, "redis", "localhost:6379", "Redis address")
	fs.StringVar(&cfg.RedisPass, "password", "", "Redis password")
	fs.IntVar(&cfg.RedisDB, "db", 0, "Redis database")
	fs.StringVar(&cfg.Key, "key", "rules_packed", "Rule payload key")
	fs.StringVar(&cfg.Channel, "channel", "edgewall_updates", "Deploy notification channel")
	fs.Parse(args)
	return cfg
}

func packJSON(jsonData []byte) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(jsonData); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func deploy(rdb *redis.Client, cfg *deployConfig, packed string) error {
	if err := rdb.Set(ctx, cfg.Key, packed, 0).Err(); err != nil {
		return fmt.Errorf("error writing %s: %w", cfg.Key, err)
	}
	if err := rdb.Publish(ctx, cfg.Channel, "deploy").Err(); err != nil {
		return fmt.Errorf("error publishing to %s: %w", cfg.Channel, err)
	}
	return nil
}

func main() {
	cfg := parseFlags(os.Args[1:])

	jsonData, err := os.ReadFile(cfg.InputFile)
	if err != nil {
		fmt.Printf("Error reading %s: %v\n", cfg.InputFile, err)
		os.Exit(1)
	}

	packed, err := packJSON(jsonData)
	if err != nil {
		fmt.Printf("Error packing payload: %v\n", err)
		os.Exit(1)
	}

	// Reject a broken graph before it reaches the store.
	if _, err := compiler.Load([]byte(packed)); err != nil {
		fmt.Printf("Payload failed validation, not deploying: %v\n", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	if err := deploy(rdb, cfg, packed); err != nil {
		fmt.Printf("Deploy failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Deployed %s (%d bytes packed) to %s, notified %s\n",
		cfg.InputFile, len(packed), cfg.Key, cfg.Channel)
}
