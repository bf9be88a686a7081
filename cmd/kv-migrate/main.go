package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fystack/plinko-engine/pkg/common/config"
	"github.com/fystack/plinko-engine/pkg/common/constant"
	"github.com/fystack/plinko-engine/pkg/infra"
	"github.com/fystack/plinko-engine/pkg/kvstore"
	"github.com/goccy/go-yaml"
	"github.com/imdario/mergo"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

type CLI struct {
	Config string `help:"YAML file describing source, destination and prefixes." required:"true"`
	DryRun bool   `help:"Print the keys that would be copied without writing."`
}

// MigrationConfig moves hash chain links and rounds between stores, e.g. from
// a single node Badger directory to a shared Consul folder.
type MigrationConfig struct {
	Source      config.KVSConfig `yaml:"source"`
	Destination config.KVSConfig `yaml:"destination"`
	Prefixes    []string         `yaml:"prefixes"`
	Verify      bool             `yaml:"verify"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("kv-migrate"),
		kong.Description("Copy hash chain and round keys between Badger and Consul."))

	cfg, err := loadConfig(cli.Config)
	ctx.FatalIfErrorf(err)

	fmt.Printf("%s%sKV migration%s %s -> %s, prefixes: %s%s%s\n",
		colorBold, colorCyan, colorReset,
		cfg.Source.Type, cfg.Destination.Type,
		colorYellow, strings.Join(cfg.Prefixes, ", "), colorReset)
	if cli.DryRun {
		fmt.Printf("%sDRY RUN%s\n", colorRed, colorReset)
	}

	src, err := kvstore.NewFromConfig(cfg.Source)
	ctx.FatalIfErrorf(err)
	defer src.Close()

	dst, err := kvstore.NewFromConfig(cfg.Destination)
	ctx.FatalIfErrorf(err)
	defer dst.Close()

	start := time.Now()
	total, copied, err := migrate(src, dst, cfg.Prefixes, cfg.Verify, cli.DryRun)
	ctx.FatalIfErrorf(err)

	fmt.Printf("%s%sDone:%s %d keys found, %d copied in %s\n",
		colorBold, colorGreen, colorReset, total, copied, time.Since(start).Round(time.Millisecond))
}

func loadConfig(path string) (*MigrationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}

	var cfg MigrationConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML config: %w", err)
	}
	// an empty field here always means "not set"
	if err := mergo.Merge(&cfg, defaultMigration()); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}
	return &cfg, nil
}

func defaultMigration() MigrationConfig {
	return MigrationConfig{
		Source:      config.KVSConfig{Badger: config.BadgerConfig{Prefix: "plinko"}},
		Destination: config.KVSConfig{Badger: config.BadgerConfig{Prefix: "plinko"}},
		Prefixes:    []string{constant.KVPrefixChain, constant.KVPrefixRounds},
	}
}

// migrate copies raw values so the destination holds exactly what the source
// codec wrote. Chain heads are copied after their links because List returns
// keys in order and "head" sorts after "links/".
func migrate(src, dst infra.KVStore, prefixes []string, verify, dryRun bool) (int, int, error) {
	var pairs []*infra.KVPair
	for _, prefix := range prefixes {
		found, err := src.List(prefix)
		if err != nil {
			return 0, 0, fmt.Errorf("listing keys with prefix %q: %w", prefix, err)
		}
		fmt.Printf("  %s: %d keys\n", prefix, len(found))
		pairs = append(pairs, found...)
	}

	total := len(pairs)
	if total == 0 || dryRun {
		for i, kv := range pairs {
			if i == 10 {
				fmt.Printf("  ... and %d more keys\n", total-10)
				break
			}
			fmt.Printf("  %s\n", kv.Key)
		}
		return total, 0, nil
	}

	copied := 0
	for i, kv := range pairs {
		if err := dst.Set(kv.Key, string(kv.Value)); err != nil {
			return total, copied, fmt.Errorf("setting key %q: %w", kv.Key, err)
		}
		copied++

		if verify {
			got, err := dst.Get(kv.Key)
			if err != nil {
				return total, copied, fmt.Errorf("verifying key %q: %w", kv.Key, err)
			}
			if got != string(kv.Value) {
				return total, copied, fmt.Errorf("verification failed for key %q", kv.Key)
			}
		}

		if (i+1)%1000 == 0 || i == total-1 {
			fmt.Printf("\r  progress: %s %d/%d", progressBar(float64(i+1)/float64(total), 20), i+1, total)
		}
	}
	fmt.Println()
	return total, copied, nil
}

func progressBar(ratio float64, width int) string {
	filled := int(ratio * float64(width))
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}
