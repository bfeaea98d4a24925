package connection

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var retryInterval = 5 * time.Second

// PostgresDialector builds the DSN the way the deployment env exposes it.
func PostgresDialector(host, user, password, dbname, port, sslmode string) gorm.Dialector {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		host, user, password, dbname, port, sslmode,
	)
	return postgres.Open(dsn)
}

func SQLiteDialector(path string) gorm.Dialector {
	return sqlite.Open(path + "?_busy_timeout=5000&_journal_mode=WAL")
}

func ConnectGORMWithRetry(dialector gorm.Dialector, maxRetries int) (*gorm.DB, error) {
	logger := zap.L().Named("connection.gorm")
	var lastErr error

	for i := 1; i <= maxRetries; i++ {

		db, err := gorm.Open(dialector, &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err != nil {
			lastErr = err
			logger.Warn("gorm open failed", zap.Int("attempt", i), zap.Int("max", maxRetries), zap.Error(err))
			time.Sleep(retryInterval)
			continue
		}

		sqlDB, err := db.DB()
		if err != nil {
			lastErr = err
			logger.Warn("get sql.DB failed", zap.Int("attempt", i), zap.Int("max", maxRetries), zap.Error(err))
			time.Sleep(retryInterval)
			continue
		}

		if err := sqlDB.Ping(); err != nil {
			lastErr = err
			logger.Warn("db ping failed", zap.Int("attempt", i), zap.Int("max", maxRetries), zap.Error(err))
			time.Sleep(retryInterval)
			continue
		}

		// Pool config
		if dialector.Name() == "sqlite" {
			sqlDB.SetMaxOpenConns(1)
		} else {
			sqlDB.SetMaxOpenConns(25)
			sqlDB.SetMaxIdleConns(10)
		}
		sqlDB.SetConnMaxLifetime(time.Hour)

		logger.Info("gorm connected", zap.String("dialect", dialector.Name()))
		return db, nil
	}

	return nil, fmt.Errorf("database connection failed after %d retries: %w", maxRetries, lastErr)
}

func ConnectRedisWithRetry(addr string, maxRetries int) (*redis.Client, error) {
	logger := zap.L().Named("connection.redis")
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	var lastErr error
	for i := 1; i <= maxRetries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		lastErr = rdb.Ping(ctx).Err()
		cancel()
		if lastErr == nil {
			logger.Info("redis connected", zap.String("addr", addr))
			return rdb, nil
		}

		logger.Warn("redis ping failed", zap.Int("attempt", i), zap.Int("max", maxRetries), zap.Error(lastErr))
		time.Sleep(retryInterval)
	}

	_ = rdb.Close()
	return nil, fmt.Errorf("failed to connect redis at %s: %w", addr, lastErr)
}

// ConnectKafkaWithRetry checks that at least one broker answers before the
// readers and writers are built.
func ConnectKafkaWithRetry(brokers []string, maxRetries int) error {
	logger := zap.L().Named("connection.kafka")
	if len(brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}

	var lastErr error
	for i := 1; i <= maxRetries; i++ {
		for _, broker := range brokers {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			conn, err := kafka.DialContext(ctx, "tcp", broker)
			cancel()
			if err != nil {
				lastErr = err
				continue
			}
			_, err = conn.Brokers()
			_ = conn.Close()
			if err != nil {
				lastErr = err
				continue
			}
			logger.Info("kafka reachable", zap.String("broker", broker))
			return nil
		}

		logger.Warn("kafka dial failed", zap.Int("attempt", i), zap.Int("max", maxRetries), zap.Error(lastErr))
		time.Sleep(retryInterval)
	}

	return fmt.Errorf("kafka unreachable after %d retries: %w", maxRetries, lastErr)
}
