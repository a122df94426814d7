package config

import (
	"database/sql"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/courselane/course_platform/internal/models"
)

type Config struct {
	PORT      string
	LOG_LEVEL string

	DATABASE          string
	DATABASE_PASSWORD string

	JWT_SECRET            string
	JWT_EXPIRES_IN        time.Duration
	JWT_COOKIE_EXPIRES_IN int

	STRIPE_SECRET_KEY     string
	STRIPE_WEBHOOK_SECRET string
	PAYMENT_SUCCESS_URL   string
	PAYMENT_CANCEL_URL    string
	PAYMENT_CURRENCY      string

	PASSWORD_RESET_URL string
	SMTP_HOST          string
	SMTP_PORT          int
	SMTP_USER          string
	SMTP_PASS          string
	SMTP_FROM          string

	KAFKA_ADDRESS string
	ES_URL        string
	ES_USER       string
	ES_PASSWORD   string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	config := &Config{
		PORT:      getDefault("PORT", "5000"),
		LOG_LEVEL: getDefault("LOG_LEVEL", "info"),

		DATABASE:          os.Getenv("DATABASE"),
		DATABASE_PASSWORD: os.Getenv("DATABASE_PASSWORD"),

		JWT_SECRET:            os.Getenv("JWT_SECRET"),
		JWT_EXPIRES_IN:        getDuration("JWT_EXPIRES_IN", 24*time.Hour),
		JWT_COOKIE_EXPIRES_IN: getInt("JWT_COOKIE_EXPIRES_IN", 1),

		STRIPE_SECRET_KEY:     os.Getenv("STRIPE_SECRET_KEY"),
		STRIPE_WEBHOOK_SECRET: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		PAYMENT_SUCCESS_URL:   os.Getenv("PAYMENT_SUCCESS_URL"),
		PAYMENT_CANCEL_URL:    os.Getenv("PAYMENT_CANCEL_URL"),
		PAYMENT_CURRENCY:      getDefault("PAYMENT_CURRENCY", "inr"),

		PASSWORD_RESET_URL: os.Getenv("PASSWORD_RESET_URL"),
		SMTP_HOST:          os.Getenv("SMTP_HOST"),
		SMTP_PORT:          getInt("SMTP_PORT", 587),
		SMTP_USER:          os.Getenv("SMTP_USER"),
		SMTP_PASS:          os.Getenv("SMTP_PASS"),
		SMTP_FROM:          os.Getenv("SMTP_FROM"),

		KAFKA_ADDRESS: os.Getenv("KAFKA_ADDRESS"),
		ES_URL:        os.Getenv("ES_URL"),
		ES_USER:       os.Getenv("ES_USER"),
		ES_PASSWORD:   os.Getenv("ES_PASSWORD"),
	}

	return config, nil
}

// DSN builds the connection string, substituting the <PASSWORD> placeholder
// so the raw password never appears in the DATABASE variable itself.
func (c *Config) DSN() string {
	return strings.Replace(c.DATABASE, "<PASSWORD>", c.DATABASE_PASSWORD, 1)
}

func MustNonEmpty(value, envName string) {
	if value == "" {
		log.Fatalf("missing required env %s", envName)
	}
}

func InitDB(c *Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(c.DSN()), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}

	if sqlDB, err := db.DB(); err == nil {
		configurePool(sqlDB)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Course{},
		&models.Module{},
		&models.Clip{},
		&models.Purchase{},
	)
}

func configurePool(sqlDB *sql.DB) {
	const (
		maxOpenConns    = 20
		maxIdleConns    = 10
		connMaxLifetime = 30 * time.Minute
		connMaxIdleTime = 5 * time.Minute
	)

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)
}

func getDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
