package app

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dropDatabas3/tokencore/internal/config"
	"github.com/dropDatabas3/tokencore/internal/jwt"
	"github.com/dropDatabas3/tokencore/internal/observability/logger"
	"github.com/dropDatabas3/tokencore/internal/security/secretbox"
)

// devKeyBits es el tamaño de la clave efímera generada fuera de prod.
const devKeyBits = 2048

// loadKeys carga (una vez por proceso) el par RSA de firma. Si ya hay un par cargado lo reutiliza.
func loadKeys(cfg *config.Config) (*jwt.KeyPair, error) {
	if k, err := jwt.Default(); err == nil {
		return k, nil
	}
	var (
		k   *jwt.KeyPair
		err error
	)
	if strings.TrimSpace(cfg.Keys.PrivateKey) != "" {
		k, err = jwt.ParsePrivateKey(cfg.Keys.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("keys.private_key: %w", err)
		}
	} else {
		if cfg.IsProd() {
			return nil, errors.New("keys.private_key: required in prod")
		}
		logger.L().Warn("no signing key configured, generating an ephemeral one", logger.Component("keys"))
		k, err = jwt.GenerateKeyPair(devKeyBits)
		if err != nil {
			return nil, err
		}
	}
	if err := jwt.Load(k); err != nil {
		// Otro goroutine ganó la carga.
		return jwt.Default()
	}
	return k, nil
}

// loadCodec carga la clave de cifrado de codes/refresh tokens. Orden: config, env, efímera (no prod).
func loadCodec(cfg *config.Config) (*secretbox.Box, error) {
	if b, err := secretbox.Default(); err == nil {
		return b, nil
	}
	raw := strings.TrimSpace(cfg.Keys.EncryptionKey)
	if raw == "" {
		raw = strings.TrimSpace(os.Getenv(secretbox.EnvVar))
	}
	var (
		k   secretbox.Key
		err error
	)
	if raw != "" {
		k, err = secretbox.ParseKey(raw)
		if err != nil {
			return nil, fmt.Errorf("keys.encryption_key: %w", err)
		}
	} else {
		if cfg.IsProd() {
			return nil, errors.New("keys.encryption_key: required in prod")
		}
		logger.L().Warn("no encryption key configured, generating an ephemeral one", logger.Component("keys"))
		if k, err = secretbox.GenerateKey(); err != nil {
			return nil, err
		}
	}
	if err := secretbox.Load(k); err != nil && !errors.Is(err, secretbox.ErrAlreadyLoaded) {
		return nil, err
	}
	return secretbox.Default()
}
