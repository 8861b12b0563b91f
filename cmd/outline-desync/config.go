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
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/Jigsaw-Code/outline-desync/desync"
)

// config is the merged proxy configuration. Perturbation fields are pointers
// so that "absent" and "zero" stay distinguishable across the YAML and flag
// layers.
type config struct {
	IP       string `yaml:"ip"`
	Port     string `yaml:"port"`
	Disorder *uint  `yaml:"disorder"`
	Split    *uint  `yaml:"split"`
	OOB      *uint  `yaml:"oob"`
	TLSRec   *uint  `yaml:"tlsrec"`
}

func defaultConfig() *config {
	return &config{IP: "0.0.0.0", Port: "1080"}
}

// loadConfigFile overlays the YAML file at path onto cfg. Fields absent from
// the file keep their current values.
func loadConfigFile(path string, cfg *config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %v: %w", path, err)
	}
	return nil
}

// params builds the immutable desync configuration shared by all connections.
func (c *config) params() *desync.Params {
	var methods []desync.Method
	if c.Disorder != nil {
		methods = append(methods, desync.Method{Kind: desync.Disorder, Part: desync.Part{Pos: int(*c.Disorder)}})
	}
	if c.Split != nil {
		methods = append(methods, desync.Method{Kind: desync.Split, Part: desync.Part{Pos: int(*c.Split)}})
	}
	if c.OOB != nil {
		methods = append(methods, desync.Method{Kind: desync.OOB, Part: desync.Part{Pos: int(*c.OOB)}})
	}
	var rec *desync.Part
	if c.TLSRec != nil {
		rec = &desync.Part{Pos: int(*c.TLSRec)}
	}
	return desync.NewParams(rec, methods)
}
