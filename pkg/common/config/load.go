package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
)

var validate = validator.New()

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML document over the defaults and validates the result.
// Keys present in the document win even when they hold a zero value.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal([]byte(expandEnv(string(data))), &cfg); err != nil {
		return nil, err
	}

	// validate
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("struct validation failed: %w", err)
	}

	board := cfg.Games.Lightning.Board
	if board.MinRow >= board.Rows {
		return nil, fmt.Errorf("lightning board min_row %d must be below rows %d", board.MinRow, board.Rows)
	}
	if 2*board.ZeroBandMax+1 >= board.Rows+1 {
		return nil, fmt.Errorf("lightning zero band %d leaves no payable holes", board.ZeroBandMax)
	}

	return &cfg, nil
}

// expandEnv replaces ${VAR} placeholders with environment values.
func expandEnv(s string) string {
	for {
		start := strings.Index(s, "${")
		if start == -1 {
			return s
		}
		end := strings.Index(s[start:], "}")
		if end == -1 {
			return s
		}
		end += start
		varName := s[start+2 : end]
		s = strings.ReplaceAll(s, "${"+varName+"}", os.Getenv(varName))
	}
}
