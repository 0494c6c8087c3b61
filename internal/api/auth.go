// Package api provides the local HTTP monitor API: prompt queue status,
// answered history and a live event stream.
package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const (
	tokenFileName = ".token"
	tokenSize     = 32 // 32 bytes = 256 bits
)

// Auth checks bearer tokens against the token stored in the state
// directory.
type Auth struct {
	token    string
	filePath string
}

// NewAuth generates a random token and writes it to stateDir with mode
// 0600, creating the directory if needed.
func NewAuth(stateDir string) (*Auth, error) {
	tokenBytes := make([]byte, tokenSize)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, err
	}

	filePath := filepath.Join(stateDir, tokenFileName)
	if err := os.WriteFile(filePath, []byte(token), 0600); err != nil {
		return nil, err
	}

	return &Auth{
		token:    token,
		filePath: filePath,
	}, nil
}

// LoadAuth reads the token written by a running server.
func LoadAuth(stateDir string) (*Auth, error) {
	filePath := filepath.Join(stateDir, tokenFileName)
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return nil, fmt.Errorf("empty token file %s", filePath)
	}

	return &Auth{
		token:    token,
		filePath: filePath,
	}, nil
}

// Remove deletes the token file.
func (a *Auth) Remove() error {
	if err := os.Remove(a.filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Middleware rejects requests without a valid bearer token.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || scheme != "Bearer" || token == "" {
			writeError(w, "invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) != 1 {
			writeError(w, "invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Token returns the bearer token.
func (a *Auth) Token() string {
	return a.token
}

// FilePath returns the path to the token file.
func (a *Auth) FilePath() string {
	return a.filePath
}
