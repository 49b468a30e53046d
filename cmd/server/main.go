package main

import (
	"github.com/filmgraph/backend/internal/server"
	"github.com/filmgraph/backend/internal/util"
	"github.com/filmgraph/backend/pkg/logger"
	"github.com/filmgraph/backend/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: util.GetEnvBool("DEBUG", false),
		JSON:  util.GetEnv("LOG_FORMAT") == "json",
	})
	logger.Init(consoleLogger)

	server.Init()
}
