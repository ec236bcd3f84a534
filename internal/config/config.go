package config

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"strconv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisHost     string
	RedisPort     int
	RedisPassword string

	// JWT (management API)
	JWTSecret      string
	JWTExpireHours int

	// License key material. All key derivation (AES-256 key for the
	// reversible ciphertext, HMAC secret for lookup tokens) starts from
	// this master secret.
	LicenseMasterSecret string

	// Verification rate limiting
	RateLimitMax    int
	RateLimitWindow int // seconds

	// Release artifacts served by the classloader endpoint
	ArtifactDir string

	// Geo country header set by the edge/CDN layer (ISO alpha-3)
	GeoCountryHeader string

	// API
	APIPort int
}

// generateSecureSecret generates a cryptographically secure random secret
func generateSecureSecret(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return hex.EncodeToString([]byte(os.Getenv("HOSTNAME") + string(rune(length))))
	}
	return hex.EncodeToString(bytes)
}

func Load() *Config {
	// JWT Secret - generate random if not provided
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = generateSecureSecret(32)
		log.Println("WARNING: JWT_SECRET not set - generated random secret. Management tokens will not survive restarts.")
	}

	// Master secret for license key encryption and lookup hashing.
	// A generated secret keeps the service bootable for development, but
	// previously stored keys become unreadable on restart.
	masterSecret := os.Getenv("LICENSE_MASTER_SECRET")
	if masterSecret == "" {
		masterSecret = generateSecureSecret(32)
		log.Println("WARNING: LICENSE_MASTER_SECRET not set - generated random secret. Stored license keys will not decrypt across restarts!")
	}

	dbPassword := getEnv("DB_PASSWORD", "")
	if dbPassword == "" {
		log.Println("WARNING: DB_PASSWORD not set - this is insecure for production!")
		dbPassword = "changeme"
	}

	redisPassword := getEnv("REDIS_PASSWORD", "")
	if redisPassword == "" {
		log.Println("WARNING: REDIS_PASSWORD not set - Redis is not secured!")
	}

	return &Config{
		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 5432),
		DBUser:     getEnv("DB_USER", "keygate"),
		DBPassword: dbPassword,
		DBName:     getEnv("DB_NAME", "keygate"),

		// Redis
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnvInt("REDIS_PORT", 6379),
		RedisPassword: redisPassword,

		// JWT
		JWTSecret:      jwtSecret,
		JWTExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 168), // 7 days default

		// License keys
		LicenseMasterSecret: masterSecret,

		// Rate limiting: verification requests per license key per window
		RateLimitMax:    getEnvInt("RATE_LIMIT_MAX", 10),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		// Artifacts
		ArtifactDir: getEnv("ARTIFACT_DIR", "/var/lib/keygate/artifacts"),

		// Geo
		GeoCountryHeader: getEnv("GEO_COUNTRY_HEADER", "X-Geo-Country"),

		// API
		APIPort: getEnvInt("API_PORT", 8080),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
