package jwt

import "sync"

var (
	testKeysOnce sync.Once
	testKeys     *KeyPair
	testKeysErr  error
)

// TestKeyPair devuelve un par RSA-2048 generado una vez por proceso de test.
// No usar fuera de tests.
func TestKeyPair() (*KeyPair, error) {
	testKeysOnce.Do(func() {
		testKeys, testKeysErr = GenerateKeyPair(2048)
	})
	return testKeys, testKeysErr
}
