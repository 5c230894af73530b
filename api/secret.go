// Copyright 2025 The veris-sentinel Authors
// This file is part of veris-sentinel.
//
// veris-sentinel is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// veris-sentinel is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with veris-sentinel. If not, see <http://www.gnu.org/licenses/>.

package api

import (
	"crypto/subtle"
	"errors"
	"strings"
)

const minSecretLen = 16

// shellMetaChars are rejected in shared secrets: the secret crosses
// host tooling on the sender side, so a value carrying any of these is
// treated as misconfiguration, not authentication material.
const shellMetaChars = ";&|`$(){}[]\\"

var placeholderSecrets = []string{
	"change-me",
	"insecure-placeholder",
	"replace-with-real-secret",
}

var (
	errSecretTooShort    = errors.New("shared secret shorter than 16 characters")
	errSecretMetaChars   = errors.New("shared secret contains shell metacharacters")
	errSecretPlaceholder = errors.New("shared secret is a known placeholder")
)

// validateSecretShape rejects secrets that cannot possibly be real
// credentials. It runs on the configured secret at startup and again on
// every presented secret, so a placeholder on either side fails closed.
func validateSecretShape(secret string) error {
	if len(secret) < minSecretLen {
		return errSecretTooShort
	}
	if strings.ContainsAny(secret, shellMetaChars) {
		return errSecretMetaChars
	}
	lowered := strings.ToLower(secret)
	for _, p := range placeholderSecrets {
		if lowered == p {
			return errSecretPlaceholder
		}
	}
	return nil
}

// secretMatches compares in constant time. Both sides must also pass
// the shape check.
func secretMatches(configured, presented string) bool {
	if validateSecretShape(configured) != nil || validateSecretShape(presented) != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}
