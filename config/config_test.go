package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_URL", "http://localhost:8080/")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("DB_USE_SSL", "")
	t.Setenv("MAX_IMAGE_BYTES", "5242880")

	cfg := LoadConfig()

	assert.Equal(t, "http://localhost:8080", cfg.AppURL)
	assert.Equal(t, int64(defaultMaxImageBytes), cfg.MaxImageBytes)
	assert.Nil(t, cfg.Notify.Kafka.Brokers)
	assert.False(t, cfg.Database.UseSSL)
	assert.Equal(t, "-sub", cfg.Notify.PubSub.SubscriptionSuffix)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_USE_SSL", "yes")
	t.Setenv("JWT_SECRET", "  s3cret  ")
	t.Setenv("STORAGE_BACKEND", "gcs")
	t.Setenv("GCS_BUCKET", "listing-photos")
	t.Setenv("NOTIFY_BACKEND", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("RABBITMQ_DURABLE", "off")

	cfg := LoadConfig()

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.True(t, cfg.Database.UseSSL)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, "gcs", cfg.Storage.Backend)
	assert.Equal(t, "listing-photos", cfg.Storage.GCS.Bucket)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notify.Kafka.Brokers)
	assert.False(t, cfg.Notify.RabbitMQ.QueueDurable)
}

func TestGetEnvBoolFallsBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_FLAG", "maybe")
	assert.True(t, getEnvBool("SOME_FLAG", true))
	assert.False(t, getEnvBool("SOME_FLAG", false))
}
