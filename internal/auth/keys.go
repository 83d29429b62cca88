package auth

import (
	"crypto/rsa"
	"fmt"

	jwt "github.com/golang-jwt/jwt/v5"
)

// InvalidKeyError reports key material that could not be loaded.
type InvalidKeyError struct {
	Kind string
	Err  error
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("invalid %s key: %v", e.Kind, e.Err)
}

func (e *InvalidKeyError) Unwrap() error {
	return e.Err
}

// ParsePrivateKey loads an RSA private key from PEM (PKCS#1 or PKCS#8).
func ParsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	if len(pemBytes) == 0 {
		return nil, &InvalidKeyError{Kind: "private", Err: fmt.Errorf("no key material")}
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, &InvalidKeyError{Kind: "private", Err: err}
	}
	return key, nil
}

// ParsePublicKey loads an RSA public key from PEM (PKIX, PKCS#1 or certificate).
func ParsePublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	if len(pemBytes) == 0 {
		return nil, &InvalidKeyError{Kind: "public", Err: fmt.Errorf("no key material")}
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(pemBytes)
	if err != nil {
		return nil, &InvalidKeyError{Kind: "public", Err: err}
	}
	return key, nil
}
