/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package crypto

import (
	"crypto/tls"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClientAuth(t *testing.T) {
	tests := []struct {
		in      string
		want    tls.ClientAuthType
		wantErr bool
	}{
		{"", tls.NoClientCert, false},
		{"none", tls.NoClientCert, false},
		{"request", tls.RequestClientCert, false},
		{"require", tls.RequireAnyClientCert, false},
		{"VERIFY", tls.RequireAndVerifyClientCert, false},
		{"maybe", tls.NoClientCert, true},
	}
	for _, tt := range tests {
		got, err := ParseClientAuth(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidClientAuth)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestServerAndClientConfig(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile, err := GenerateSelfSigned(dir, []string{"127.0.0.1", "localhost"}, time.Hour)
	require.NoError(t, err)

	srv, err := NewServerTLSConfig(TLSConfig{
		CertFile:   certFile,
		KeyFile:    keyFile,
		CAFile:     certFile,
		ClientAuth: tls.RequireAndVerifyClientCert,
	})
	require.NoError(t, err)
	assert.Len(t, srv.Certificates, 1)
	assert.NotNil(t, srv.ClientCAs)
	assert.Equal(t, tls.RequireAndVerifyClientCert, srv.ClientAuth)
	assert.Equal(t, uint16(tls.VersionTLS12), srv.MinVersion)

	cli, err := NewClientTLSConfig(TLSConfig{CAFile: certFile, ServerName: "localhost"})
	require.NoError(t, err)
	assert.NotNil(t, cli.RootCAs)
	assert.Equal(t, "localhost", cli.ServerName)
}

func TestMissingFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := NewServerTLSConfig(TLSConfig{
		CertFile: filepath.Join(dir, "missing.crt"),
		KeyFile:  filepath.Join(dir, "missing.key"),
	})
	assert.ErrorIs(t, err, ErrCertNotFound)

	certFile, _, err := GenerateSelfSigned(dir, []string{"localhost"}, time.Hour)
	require.NoError(t, err)
	assert.ErrorIs(t, ValidateTLSFiles(certFile, filepath.Join(dir, "nope.key")), ErrKeyNotFound)

	_, err = NewClientTLSConfig(TLSConfig{CAFile: filepath.Join(dir, "ca.pem")})
	assert.ErrorIs(t, err, ErrCANotFound)
}
