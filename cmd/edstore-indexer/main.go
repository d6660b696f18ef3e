package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/nyaruka/ezconf"

	"github.com/jacentio/edstore/search"
	"github.com/jacentio/edstore/stream"
)

type config struct {
	OpenSearchEndpoint string `help:"the URL of the OpenSearch cluster the indexer writes to"`
	OpenSearchUsername string `help:"the username used to authenticate against OpenSearch"`
	OpenSearchPassword string `help:"the password used to authenticate against OpenSearch"`
	LogLevel           string `help:"the logging level the indexer should use"`
}

func main() {
	cfg := &config{
		OpenSearchEndpoint: "http://localhost:9200",
		LogLevel:           "info",
	}
	loader := ezconf.NewLoader(
		cfg,
		"edstore-indexer", "edstore indexer - mirrors document changes into the search index",
		nil,
	)
	loader.MustLoad()

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("invalid log level %q: %v", cfg.LogLevel, err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	indexer, err := search.NewClient(search.Config{
		Addresses: []string{cfg.OpenSearchEndpoint},
		Username:  cfg.OpenSearchUsername,
		Password:  cfg.OpenSearchPassword,
	}, logger)
	if err != nil {
		log.Fatalf("opensearch client: %v", err)
	}

	handler := stream.NewHandler(indexer, logger)
	lambda.Start(handler.HandleEvent)
}
