package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validApp() App {
	return App{
		Env:               "dev",
		HTTPPort:          "8081",
		DataBackend:       "postgres",
		DatabaseURL:       "postgres://localhost/coaching",
		QueueBackend:      "redis",
		JWTSigningKey:     "secret",
		StudentCodePrefix: "EXC25",
		StudentCodePad:    3,
		TeacherCodePrefix: "TCH",
		DefaultFeeTotal:   75000,
	}
}

func TestApp_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*App)
		wantErr string
	}{
		{name: "valid", mutate: func(*App) {}},
		{name: "memory backend needs no database url", mutate: func(a *App) { a.DataBackend = "memory"; a.DatabaseURL = "" }},
		{name: "non-numeric port", mutate: func(a *App) { a.HTTPPort = "abc" }, wantErr: "invalid port 'abc': must be a number"},
		{name: "port out of range", mutate: func(a *App) { a.HTTPPort = "70000" }, wantErr: "invalid port 70000: must be between 1 and 65535"},
		{name: "unknown data backend", mutate: func(a *App) { a.DataBackend = "firestore" }, wantErr: "invalid data backend 'firestore': must be one of [postgres memory]"},
		{name: "postgres without url", mutate: func(a *App) { a.DatabaseURL = "" }, wantErr: "DATABASE_URL cannot be empty when using postgres backend"},
		{name: "unknown queue backend", mutate: func(a *App) { a.QueueBackend = "kafka" }, wantErr: "invalid queue backend 'kafka': must be one of [redis memory amqp]"},
		{name: "bad amqp url", mutate: func(a *App) { a.QueueBackend = "amqp"; a.AMQPURL = "http://nope" }, wantErr: "invalid AMQP URL 'http://nope'"},
		{name: "dev key in production", mutate: func(a *App) { a.Env = "prod"; a.JWTSigningKey = "dev-signing-secret-change" }, wantErr: "JWT_SIGNING_KEY must be changed in production"},
		{name: "pad too large", mutate: func(a *App) { a.StudentCodePad = 20 }, wantErr: "invalid STUDENT_CODE_PAD 20: must be between 0 and 12"},
		{name: "non-positive fee total", mutate: func(a *App) { a.DefaultFeeTotal = 0 }, wantErr: "DEFAULT_FEE_TOTAL must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := validApp()
			tt.mutate(&app)
			err := app.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("ACCESS_TTL", "30m")
	t.Setenv("RATE_LIMIT_PER_MIN", "not-a-number")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")

	cfg := Load()
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 25*time.Second, cfg.StreamHeartbeat)
	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, 30*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 120, cfg.RateLimitPerMin)
	assert.Equal(t, "EXC25", cfg.StudentCodePrefix)
	assert.Equal(t, int64(75000), cfg.DefaultFeeTotal)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("TEACHER_CODE_PREFIX=TUT\nQUEUE_BACKEND=memory\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	t.Cleanup(func() {
		os.Unsetenv("TEACHER_CODE_PREFIX")
		os.Unsetenv("QUEUE_BACKEND")
	})

	cfg := Load()
	assert.Equal(t, "TUT", cfg.TeacherCodePrefix)
	assert.Equal(t, "memory", cfg.QueueBackend)
}
