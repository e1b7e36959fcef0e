package main

import (
	"log/slog"
	"os"

	"github.com/qamtools/reviewtool/conf"
	"github.com/qamtools/reviewtool/internal/remote"
	"github.com/qamtools/reviewtool/internal/report"
	"github.com/qamtools/reviewtool/internal/service"
)

// app связывает сконфигурированные сервисы для команд CLI.
type app struct {
	cfg       *conf.Config
	directory *service.Directory
	requests  *service.RequestService
	engine    *service.InferenceEngine
	executor  *service.Executor
	reports   report.Source
	lister    *service.Lister
}

// main конфигурирует инструмент, собирает сервисы и запускает CLI.
func main() {
	// Берём путь до конфигурации из окружения либо используем значение по умолчанию.
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "./conf/config.json"
	}

	// Загружаем конфигурацию.
	config := conf.MustLoad(cfgPath)
	slog.Info("Configuration loaded successfully", "config_path", cfgPath)

	// Создаём клиент удалённого build-сервиса.
	client, err := remote.NewHTTPClient(
		config.RemoteConf.BaseURL,
		config.RemoteConf.Username,
		config.RemoteConf.Password,
		config.RemoteConf.Timeout(),
	)
	if err != nil {
		slog.Error("Remote client initialization failed", "error", err)
		os.Exit(1)
	}

	conv := config.ReviewConf.Convention()
	log := slog.Default()

	// Собираем сервисы поверх клиента.
	directory := service.NewDirectory(client)
	requests := service.NewRequestService(client, log)
	engine := service.NewInferenceEngine(conv, log)
	reports := report.NewRemoteSource(client)
	lister := service.NewLister(requests, reports, directory, engine, conv, config.ReviewConf.Workers(), log)
	executor := service.NewExecutor(requests, log)

	application := &app{
		cfg:       config,
		directory: directory,
		requests:  requests,
		engine:    engine,
		executor:  executor,
		reports:   reports,
		lister:    lister,
	}

	if err := newRootCmd(application).Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
