// Copyright 2025 The Refinery Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package secrets resolves provider API credentials. Keys are read from
// the environment first, then from the OS keychain.
//
// Supported platforms for keychain storage:
//   - macOS: Keychain Access
//   - Linux: Secret Service API (GNOME Keyring, KWallet)
//   - Windows: Credential Manager
package secrets

import (
	"errors"
	"fmt"
	"os"

	"github.com/zalando/go-keyring"

	refineryerrors "github.com/prooflab/refinery/pkg/errors"
)

// Service is the keychain service name for all Refinery entries.
const Service = "refinery"

// Store persists and resolves provider API keys.
type Store struct {
	service string

	// getenv and keyring access are swappable for tests.
	getenv func(string) string
	get    func(service, key string) (string, error)
	set    func(service, key, value string) error
	delete func(service, key string) error
}

// NewStore creates a store backed by the process environment and the
// OS keychain.
func NewStore() *Store {
	return &Store{
		service: Service,
		getenv:  os.Getenv,
		get:     keyring.Get,
		set:     keyring.Set,
		delete:  keyring.Delete,
	}
}

// APIKey resolves the credential for a provider. The environment
// variable envVar wins over the keychain so CI and one-off runs need no
// keychain setup. A missing key on both paths is a NotFoundError.
func (s *Store) APIKey(provider, envVar string) (string, error) {
	if envVar != "" {
		if value := s.getenv(envVar); value != "" {
			return value, nil
		}
	}

	value, err := s.get(s.service, provider)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", &refineryerrors.NotFoundError{
				Resource: "API key",
				ID:       provider,
			}
		}
		return "", fmt.Errorf("keychain access failed for %s: %w", provider, err)
	}

	return value, nil
}

// SetAPIKey stores a credential in the keychain under the provider name.
func (s *Store) SetAPIKey(provider, value string) error {
	if value == "" {
		return &refineryerrors.ValidationError{
			Field:   "api_key",
			Message: "API key must not be empty",
		}
	}
	if err := s.set(s.service, provider, value); err != nil {
		return fmt.Errorf("failed to store API key for %s: %w", provider, err)
	}
	return nil
}

// DeleteAPIKey removes a credential from the keychain. Deleting a key
// that does not exist is not an error.
func (s *Store) DeleteAPIKey(provider string) error {
	err := s.delete(s.service, provider)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete API key for %s: %w", provider, err)
	}
	return nil
}
