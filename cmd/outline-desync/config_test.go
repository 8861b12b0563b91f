// Copyright 2024 The Outline Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigFile(t *testing.T) {
	path := writeTempConfig(t, "ip: 127.0.0.1\nport: \"9050\"\nsplit: 5\ntlsrec: 1\n")
	cfg := defaultConfig()
	require.NoError(t, loadConfigFile(path, cfg))

	require.Equal(t, "127.0.0.1", cfg.IP)
	require.Equal(t, "9050", cfg.Port)
	require.NotNil(t, cfg.Split)
	require.Equal(t, uint(5), *cfg.Split)
	require.NotNil(t, cfg.TLSRec)
	require.Equal(t, uint(1), *cfg.TLSRec)
	require.Nil(t, cfg.Disorder)
	require.Nil(t, cfg.OOB)
}

func TestLoadConfigFile_PartialKeepsDefaults(t *testing.T) {
	path := writeTempConfig(t, "oob: 10\n")
	cfg := defaultConfig()
	require.NoError(t, loadConfigFile(path, cfg))

	require.Equal(t, "0.0.0.0", cfg.IP)
	require.Equal(t, "1080", cfg.Port)
	require.NotNil(t, cfg.OOB)
	require.Equal(t, uint(10), *cfg.OOB)
}

func TestLoadConfigFile_Missing(t *testing.T) {
	cfg := defaultConfig()
	require.Error(t, loadConfigFile(filepath.Join(t.TempDir(), "absent.yaml"), cfg))
}

func TestLoadConfigFile_Malformed(t *testing.T) {
	path := writeTempConfig(t, "split: [not a number\n")
	cfg := defaultConfig()
	require.Error(t, loadConfigFile(path, cfg))
}

func TestConfigParams(t *testing.T) {
	split := uint(20)
	disorder := uint(8)
	rec := uint(1)
	cfg := &config{Split: &split, Disorder: &disorder, TLSRec: &rec}

	params := cfg.params()
	require.Equal(t, "split@20 disorder@8 tlsrec@1", params.String())
}

func TestConfigParams_Empty(t *testing.T) {
	require.True(t, defaultConfig().params().Empty())
}
