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

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDuration_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"minutes", "d: 5m", 5 * time.Minute, false},
		{"milliseconds", "d: 250ms", 250 * time.Millisecond, false},
		{"compound", "d: 1h30m", 90 * time.Minute, false},
		{"raw nanoseconds", "d: 1000000000", time.Second, false},
		{"garbage", "d: soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out struct {
				D Duration `yaml:"d"`
			}
			err := yaml.Unmarshal([]byte(tt.input), &out)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.D.Std())
		})
	}
}

func TestDuration_MarshalRoundTrip(t *testing.T) {
	in := struct {
		D Duration `yaml:"d"`
	}{D: Duration(90 * time.Second)}

	data, err := yaml.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), "1m30s")

	var out struct {
		D Duration `yaml:"d"`
	}
	require.NoError(t, yaml.Unmarshal(data, &out))
	assert.Equal(t, in.D, out.D)
}
