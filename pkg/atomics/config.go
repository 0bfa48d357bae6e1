/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
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

package atomics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const defaultMetricsNamespace = "shm_atomics"

// Config is used to configure an Engine.
type Config struct {
	// Strategy picks native instructions or the Runtime. StrategyAuto follows
	// Capabilities.
	Strategy Strategy

	// Capabilities overrides the capability table entry of the running GOARCH.
	Capabilities *Capabilities

	// MetricsNamespace prefixes the Prometheus metric names.
	MetricsNamespace string

	// Registerer receives the engine collectors. Nil keeps them unregistered.
	Registerer prometheus.Registerer
}

// DefaultConfig is used to return a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Strategy:         StrategyAuto,
		MetricsNamespace: defaultMetricsNamespace,
	}
}

// VerifyConfig is used to verify the sanity of configuration.
func VerifyConfig(config *Config) error {
	if !config.Strategy.Valid() {
		return fmt.Errorf("unknown strategy %d", int(config.Strategy))
	}
	if c := config.Capabilities; c != nil {
		if c.Narrow&^AllOps != 0 || c.Wide&^AllOps != 0 {
			return fmt.Errorf("capabilities name unknown operations: %#x %#x", uint16(c.Narrow), uint16(c.Wide))
		}
	}
	if !validMetricName(config.MetricsNamespace) {
		return fmt.Errorf("metrics namespace %q is not a valid metric name prefix", config.MetricsNamespace)
	}
	return nil
}

func validMetricName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == ':' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
