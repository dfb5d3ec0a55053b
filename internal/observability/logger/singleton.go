package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	once     sync.Once
	instance *zap.Logger
)

// Init inicializa el singleton. Solo la primera llamada tiene efecto.
func Init(cfg Config) {
	once.Do(func() {
		instance = build(cfg)
	})
}

// L retorna el logger singleton (dev/info si Init no fue llamado).
func L() *zap.Logger {
	if instance == nil {
		Init(Config{Env: "dev", Level: "info"})
	}
	return instance
}

// S retorna el SugaredLogger del singleton, útil en comandos CLI.
func S() *zap.SugaredLogger {
	return L().Sugar()
}

// Named retorna un logger con nombre de componente.
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// Sync flushea buffers pendientes. Llamar con defer en main.
func Sync() error {
	if instance != nil {
		return instance.Sync()
	}
	return nil
}

// Nop devuelve un logger que descarta todo; usado en tests.
func Nop() *zap.Logger {
	return zap.NewNop()
}
