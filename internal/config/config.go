package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"response-service/internal/models"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Kafka struct {
		Broker  string
		Topic   string
		GroupID string
	}
	DB struct {
		DSN string
	}
	Email struct {
		SMTPServer string
		SMTPPort   int
		Username   string
		Password   string
		FromName   string
	}
	Telegram struct {
		BotToken      string
		RatePerSecond int
	}
	API struct {
		Port     string
		BasePath string
	}
	Orchestrator struct {
		QueueSize       int
		MaxWorkers      int
		DedupWindowDays int
		MinRiskLevel    models.RiskLevel
		PriorityMap     map[models.RiskLevel]models.Priority
	}
	Dispatch struct {
		MaxInFlight    int
		AttemptTimeout time.Duration
		MaxAttempts    int
		BackoffBase    time.Duration
		ReportWindow   time.Duration
	}
	Escalation struct {
		Levels []models.RiskLevel
		Groups []string
	}
	Logging struct {
		Dir   string
		Level string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	// Kafka settings
	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = os.Getenv("KAFKA_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	// Database DSN
	cfg.DB.DSN = os.Getenv("DB_DSN")

	// Email settings
	cfg.Email.SMTPServer = os.Getenv("EMAIL_SMTP_SERVER")
	if p, err := strconv.Atoi(os.Getenv("EMAIL_SMTP_PORT")); err == nil {
		cfg.Email.SMTPPort = p
	}
	cfg.Email.Username = os.Getenv("EMAIL_USERNAME")
	cfg.Email.Password = os.Getenv("EMAIL_PASSWORD")
	cfg.Email.FromName = os.Getenv("EMAIL_FROM_NAME")

	// Telegram settings
	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if r, err := strconv.Atoi(os.Getenv("TELEGRAM_RATE_PER_SECOND")); err == nil {
		cfg.Telegram.RatePerSecond = r
	}

	// API settings
	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")

	// Orchestrator settings
	if qs, err := strconv.Atoi(os.Getenv("QUEUE_SIZE")); err == nil {
		cfg.Orchestrator.QueueSize = qs
	}
	if mw, err := strconv.Atoi(os.Getenv("MAX_WORKERS")); err == nil {
		cfg.Orchestrator.MaxWorkers = mw
	}
	if d, err := strconv.Atoi(os.Getenv("DEDUP_WINDOW_DAYS")); err == nil {
		cfg.Orchestrator.DedupWindowDays = d
	}
	if lvl := os.Getenv("MIN_RISK_LEVEL"); lvl != "" {
		parsed, err := models.ParseRiskLevel(lvl)
		if err != nil {
			return Config{}, fmt.Errorf("invalid MIN_RISK_LEVEL: %w", err)
		}
		cfg.Orchestrator.MinRiskLevel = parsed
	}
	if err := loadPriorityMap(&cfg); err != nil {
		return Config{}, err
	}

	// Dispatch settings
	if n, err := strconv.Atoi(os.Getenv("DISPATCH_MAX_INFLIGHT")); err == nil {
		cfg.Dispatch.MaxInFlight = n
	}
	if s, err := strconv.Atoi(os.Getenv("DISPATCH_ATTEMPT_TIMEOUT_SECONDS")); err == nil {
		cfg.Dispatch.AttemptTimeout = time.Duration(s) * time.Second
	}
	if n, err := strconv.Atoi(os.Getenv("DISPATCH_MAX_ATTEMPTS")); err == nil {
		cfg.Dispatch.MaxAttempts = n
	}
	if ms, err := strconv.Atoi(os.Getenv("DISPATCH_BACKOFF_BASE_MS")); err == nil {
		cfg.Dispatch.BackoffBase = time.Duration(ms) * time.Millisecond
	}
	if s, err := strconv.Atoi(os.Getenv("DISPATCH_REPORT_WINDOW_SECONDS")); err == nil {
		cfg.Dispatch.ReportWindow = time.Duration(s) * time.Second
	}

	// Escalation settings
	if err := loadEscalation(&cfg); err != nil {
		return Config{}, err
	}

	// Logging settings
	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	// Validate required settings
	missing := []string{}
	if cfg.Kafka.Broker == "" {
		missing = append(missing, "KAFKA_BROKER")
	}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	applyDefaults(&cfg)
	return cfg, nil
}

func loadPriorityMap(cfg *Config) error {
	cfg.Orchestrator.PriorityMap = map[models.RiskLevel]models.Priority{
		models.RiskLow:      models.PriorityNormal,
		models.RiskMedium:   models.PriorityNormal,
		models.RiskHigh:     models.PriorityHigh,
		models.RiskCritical: models.PriorityUrgent,
	}
	overrides := map[models.RiskLevel]string{
		models.RiskLow:      os.Getenv("PRIORITY_LOW"),
		models.RiskMedium:   os.Getenv("PRIORITY_MEDIUM"),
		models.RiskHigh:     os.Getenv("PRIORITY_HIGH"),
		models.RiskCritical: os.Getenv("PRIORITY_CRITICAL"),
	}
	for level, v := range overrides {
		if v == "" {
			continue
		}
		p := models.Priority(strings.ToLower(v))
		switch p {
		case models.PriorityNormal, models.PriorityHigh, models.PriorityUrgent:
			cfg.Orchestrator.PriorityMap[level] = p
		default:
			return fmt.Errorf("invalid priority %q for level %s", v, level)
		}
	}
	return nil
}

func loadEscalation(cfg *Config) error {
	levels := os.Getenv("ESCALATION_LEVELS")
	if levels == "" {
		levels = string(models.RiskCritical)
	}
	for _, raw := range strings.Split(levels, ",") {
		lvl, err := models.ParseRiskLevel(raw)
		if err != nil {
			return fmt.Errorf("invalid ESCALATION_LEVELS entry: %w", err)
		}
		cfg.Escalation.Levels = append(cfg.Escalation.Levels, lvl)
	}
	groups := os.Getenv("ESCALATION_GROUPS")
	if groups == "" {
		groups = models.RoleSupervisor
	}
	for _, g := range strings.Split(groups, ",") {
		if g = strings.TrimSpace(g); g != "" {
			cfg.Escalation.Groups = append(cfg.Escalation.Groups, g)
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v0"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "risk_assessments"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "response-service"
	}
	if cfg.Telegram.RatePerSecond == 0 {
		cfg.Telegram.RatePerSecond = 20
	}
	if cfg.Orchestrator.QueueSize == 0 {
		cfg.Orchestrator.QueueSize = 500
	}
	if cfg.Orchestrator.MaxWorkers == 0 {
		cfg.Orchestrator.MaxWorkers = 10
	}
	if cfg.Orchestrator.DedupWindowDays == 0 {
		cfg.Orchestrator.DedupWindowDays = 7
	}
	if cfg.Orchestrator.MinRiskLevel == "" {
		cfg.Orchestrator.MinRiskLevel = models.RiskMedium
	}
	if cfg.Dispatch.MaxInFlight == 0 {
		cfg.Dispatch.MaxInFlight = 32
	}
	if cfg.Dispatch.AttemptTimeout == 0 {
		cfg.Dispatch.AttemptTimeout = 5 * time.Second
	}
	if cfg.Dispatch.MaxAttempts == 0 {
		cfg.Dispatch.MaxAttempts = 3
	}
	if cfg.Dispatch.BackoffBase == 0 {
		cfg.Dispatch.BackoffBase = 500 * time.Millisecond
	}
	if cfg.Dispatch.ReportWindow == 0 {
		cfg.Dispatch.ReportWindow = 15 * time.Second
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}
