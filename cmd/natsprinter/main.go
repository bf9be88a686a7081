package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fystack/plinko-engine/pkg/common/logger"
	"github.com/fystack/plinko-engine/pkg/events"
	"github.com/nats-io/nats.go"
)

type CLI struct {
	NATSURL string `help:"NATS server URL."                  default:"nats://127.0.0.1:4222" name:"nats-url" env:"NATS_URL"`
	Subject string `help:"NATS subject to subscribe to."     default:"plinko.>"              name:"subject"`
	LogFile string `help:"Append events to this file."       default:""                      name:"log"`
	Type    string `help:"Only print events of this type."   default:""                      name:"type"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("natsprinter"),
		kong.Description("Print plinko settlement, round and epoch events."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(cli.Run())
}

func (c *CLI) Run() error {
	logger.Init(&logger.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.RFC3339,
	})

	var out io.Writer = os.Stdout
	if c.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(c.LogFile), 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(c.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		out = io.MultiWriter(os.Stdout, f)
	}

	nc, err := nats.Connect(c.NATSURL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	_, err = nc.Subscribe(c.Subject, func(msg *nats.Msg) {
		var env struct {
			events.Envelope
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			logger.Error("Unmarshal error", "subject", msg.Subject, "err", err)
			return
		}
		if c.Type != "" && env.Type != c.Type {
			return
		}
		fmt.Fprintf(out, "%s [%s] %s %s %s\n",
			time.Unix(env.Timestamp, 0).UTC().Format(time.RFC3339),
			msg.Subject, env.Type, env.Game, env.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	logger.Info("Subscribed to", "subject", c.Subject)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	return nil
}
