package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"argus/pkg/database"
	"argus/pkg/store"
)

func main() {
	ctx := context.Background()

	config := database.Config{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "argus"),
		Password: getEnv("PGPASSWORD", ""),
		DBName:   getEnv("DB_NAME", "argus"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),

		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
		ConnectTimeout:  getEnvDuration("DB_CONNECT_TIMEOUT", 10*time.Second),
	}

	log.Println("Connecting to database...")
	db, err := database.Connect(ctx, config)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Database connection established")

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	m, err := store.NewPostgresStore(db).Migrator()
	if err != nil {
		log.Fatalf("Failed to create migrator: %v", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil {
		log.Fatalf("Failed to read schema version: %v", err)
	}
	log.Printf("Current version: %d (dirty: %v)", version, dirty)

	switch command {
	case "up":
		if err := m.Up(); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		newVersion, _, _ := m.Version()
		log.Printf("Migrated to version %d", newVersion)

	case "down":
		if err := m.Down(); err != nil {
			log.Fatalf("Rollback failed: %v", err)
		}
		newVersion, _, _ := m.Version()
		log.Printf("Rolled back to version %d", newVersion)

	case "status":
		// Already printed above.

	case "force":
		if len(os.Args) < 3 {
			log.Fatal("Usage: migrate-db force <version>")
		}
		target, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatalf("Invalid version %q: %v", os.Args[2], err)
		}
		if err := m.Force(target); err != nil {
			log.Fatalf("Force failed: %v", err)
		}
		log.Printf("Forced schema version to %d", target)

	default:
		log.Println("Usage: migrate-db [command]")
		log.Println("Commands: up (default), down, status, force <version>")
		os.Exit(1)
	}

	log.Println("Done")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
