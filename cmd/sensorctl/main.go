package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/moondesk/ingest-worker/internal/constants"
	"github.com/moondesk/ingest-worker/internal/models"
	"github.com/moondesk/ingest-worker/internal/parser"
	"github.com/moondesk/ingest-worker/internal/utils"
	"github.com/moondesk/ingest-worker/pkg/file"
	"github.com/moondesk/ingest-worker/pkg/mqtt"
	"github.com/rs/zerolog"
)

const usage = `usage: sensorctl <command|reading> [flags]

  command  publish a command to a sensor
  reading  publish a test reading as if sent by a sensor`

// params collects repeated -param key=value flags.
type params map[string]string

func (p params) String() string {
	pairs := make([]string, 0, len(p))
	for k, v := range p {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

func (p params) Set(value string) error {
	k, v, ok := strings.Cut(value, "=")
	if !ok || k == "" {
		return fmt.Errorf("expected key=value, got %q", value)
	}
	p[k] = v
	return nil
}

type readingPayload struct {
	SensorID  int64             `json:"sensorId"`
	Value     float64           `json:"value"`
	Timestamp string            `json:"timestamp"`
	Parameter string            `json:"parameter,omitempty"`
	Quality   string            `json:"quality,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	if err := run(os.Args[1], os.Args[2:], log); err != nil {
		log.Error().Err(err).Msg("sensorctl failed")
		os.Exit(1)
	}
}

func run(sub string, args []string, log zerolog.Logger) error {
	fs := flag.NewFlagSet(sub, flag.ContinueOnError)
	configPath := fs.String("config", "configs/config.yaml", "path to the YAML configuration file")
	org := fs.String("org", "", "organization id")
	sensorID := fs.Int64("sensor", 0, "sensor id")
	timeout := fs.Duration("timeout", 10*time.Second, "publish timeout")

	var build func() (topicAction string, payload any, err error)
	fileClient := file.NewFileService()

	switch sub {
	case "command":
		action := fs.String("action", "", "command action, e.g. TURN_ON")
		paramsFile := fs.String("params-file", "", "JSON object of command parameters")
		extra := params{}
		fs.Var(extra, "param", "command parameter key=value (repeatable)")
		build = func() (string, any, error) {
			cmd, err := buildCommand(*action, *paramsFile, extra, fileClient, time.Now())
			return constants.ActionCommands, cmd, err
		}
	case "reading":
		value := fs.Float64("value", 0, "reading value")
		parameter := fs.String("parameter", "", "parameter kind, e.g. temperature")
		quality := fs.String("quality", string(models.QualityGood), "reading quality")
		build = func() (string, any, error) {
			return constants.ActionReadings, buildReading(*sensorID, *value, *parameter, *quality, time.Now()), nil
		}
	default:
		return fmt.Errorf("unknown subcommand %q\n%s", sub, usage)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *org == "" || *sensorID <= 0 {
		return errors.New("-org and a positive -sensor are required")
	}

	action, payload, err := build()
	if err != nil {
		return err
	}

	config, err := utils.LoadConfig(*configPath, fileClient)
	if err != nil {
		return err
	}

	topics := parser.NewTopicParser(config.MQTT.Namespace)
	client := mqtt.NewMqttService(mqtt.Options{
		Broker:            config.MQTT.Broker,
		ClientID:          "sensorctl-" + uuid.New().String(),
		Username:          config.MQTT.Username,
		Password:          config.MQTT.Password,
		QoS:               constants.QoSAtLeastOnce,
		CleanSession:      true,
		ConnectTimeout:    config.MQTT.ConnectTimeout,
		ReconnectInterval: config.MQTT.ReconnectInterval,
		DisconnectQuiesce: config.MQTT.DisconnectQuiesce,
	}, topics, log)
	if err := client.Connect(); err != nil {
		return err
	}
	defer client.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if action == constants.ActionCommands {
		return client.PublishCommand(ctx, *org, *sensorID, payload)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	topic := topics.SensorTopic(*org, *sensorID, action)
	if err := client.Publish(ctx, topic, constants.QoSAtLeastOnce, false, data); err != nil {
		return err
	}
	log.Info().Str("topic", topic).RawJSON("payload", data).Msg("Reading published")
	return nil
}

// buildCommand merges parameters from paramsFile with the -param flags; flags win.
func buildCommand(action, paramsFile string, extra params, fileClient file.FileOperations, now time.Time) (models.Command, error) {
	if action == "" {
		return models.Command{}, errors.New("-action is required")
	}

	merged := map[string]string{}
	if paramsFile != "" {
		if err := fileClient.ReadJsonFile(paramsFile, &merged); err != nil {
			return models.Command{}, fmt.Errorf("read %s: %w", paramsFile, err)
		}
	}
	for k, v := range extra {
		merged[k] = v
	}
	if len(merged) == 0 {
		merged = nil
	}

	return models.Command{
		CommandID:  now.UnixMilli(),
		Action:     action,
		Parameters: merged,
		IssuedAt:   now.UTC(),
	}, nil
}

func buildReading(sensorID int64, value float64, parameter, quality string, now time.Time) readingPayload {
	return readingPayload{
		SensorID:  sensorID,
		Value:     value,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		Parameter: parameter,
		Quality:   quality,
		Metadata:  map[string]string{"source": "sensorctl"},
	}
}
