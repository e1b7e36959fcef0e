package conf

import (
	"encoding/json"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/qamtools/reviewtool/internal/models"
)

var (
	configValidator = newConfigValidator()
	numberRegex     = regexp.MustCompile(`^\d+$`)
)

type Config struct {
	RemoteConf RemoteConf `json:"remote" validate:"required"`
	ReviewConf ReviewConf `json:"review" validate:"required"`
}

type RemoteConf struct {
	BaseURL        string `json:"baseURL" validate:"required,url"`
	Username       string `json:"username" validate:"required"`
	Password       string `json:"password" validate:"required"`
	TimeoutSeconds string `json:"timeoutSeconds" validate:"required,is-number"`
}

type ReviewConf struct {
	// Flavor выбирает соглашение именования QAM-групп развёртывания.
	Flavor        string `json:"flavor" validate:"required,oneof=opensuse internal"`
	ReportWorkers string `json:"reportWorkers" validate:"required,is-number"`
}

// Timeout возвращает таймаут HTTP-запросов к удалённой системе.
func (r *RemoteConf) Timeout() time.Duration {
	seconds, _ := strconv.Atoi(r.TimeoutSeconds)
	return time.Duration(seconds) * time.Second
}

// Convention возвращает соглашение QAM-групп для выбранного развёртывания.
func (r *ReviewConf) Convention() models.GroupConvention {
	if r.Flavor == "opensuse" {
		return models.OpenSUSEConvention
	}
	return models.InternalConvention
}

// Workers возвращает размер пула воркеров загрузки отчётов.
func (r *ReviewConf) Workers() int {
	workers, _ := strconv.Atoi(r.ReportWorkers)
	return workers
}

// MustLoad читает файл конфигурации, применяет значения из окружения и валидирует структуру.
func MustLoad(path string) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		panic("could not read config file: " + err.Error())
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		panic("could not parse config file: " + err.Error())
	}

	applyEnvOverrides(&cfg)

	if err := configValidator.Struct(cfg); err != nil {
		panic("invalid config: " + err.Error())
	}

	return &cfg
}

// applyEnvOverrides подменяет поля конфигурации значениями из переменных окружения.
func applyEnvOverrides(cfg *Config) {
	override := func(key string, target *string) {
		if val := os.Getenv(key); val != "" {
			*target = val
		}
	}

	override("REMOTE_URL", &cfg.RemoteConf.BaseURL)
	override("REMOTE_USERNAME", &cfg.RemoteConf.Username)
	override("REMOTE_PASSWORD", &cfg.RemoteConf.Password)
	override("REMOTE_TIMEOUT_SECONDS", &cfg.RemoteConf.TimeoutSeconds)

	override("REVIEW_FLAVOR", &cfg.ReviewConf.Flavor)
	override("REPORT_WORKERS", &cfg.ReviewConf.ReportWorkers)
}

// newConfigValidator настраивает валидатор и регистрирует пользовательские проверки.
func newConfigValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("is-number", func(fl validator.FieldLevel) bool {
		return numberRegex.MatchString(fl.Field().String())
	}); err != nil {
		panic("failed to register is-number validation: " + err.Error())
	}
	return v
}
