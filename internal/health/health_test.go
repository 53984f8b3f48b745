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

package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestNewChecker(t *testing.T) {
	checker := NewChecker("1.0.0")
	if checker == nil {
		t.Fatal("Expected non-nil checker")
	}
}

func TestRegisterCheck(t *testing.T) {
	checker := NewChecker("1.0.0")

	checker.RegisterCheck("test", func() CheckResult {
		return CheckResult{Status: StatusHealthy}
	})

	response := checker.RunChecks()
	if len(response.Checks) != 1 {
		t.Errorf("Expected 1 check, got %d", len(response.Checks))
	}
}

func TestRunChecksAllHealthy(t *testing.T) {
	checker := NewChecker("1.0.0")

	checker.RegisterCheck("check1", func() CheckResult {
		return CheckResult{Status: StatusHealthy}
	})
	checker.RegisterCheck("check2", func() CheckResult {
		return CheckResult{Status: StatusHealthy}
	})

	response := checker.RunChecks()
	if response.Status != StatusHealthy {
		t.Errorf("Expected status healthy, got %s", response.Status)
	}
}

func TestRunChecksWithUnhealthy(t *testing.T) {
	checker := NewChecker("1.0.0")

	checker.RegisterCheck("healthy", func() CheckResult {
		return CheckResult{Status: StatusHealthy}
	})
	checker.RegisterCheck("unhealthy", func() CheckResult {
		return CheckResult{Status: StatusUnhealthy, Message: "service down"}
	})

	response := checker.RunChecks()
	if response.Status != StatusUnhealthy {
		t.Errorf("Expected status unhealthy, got %s", response.Status)
	}
}

func TestRunChecksWithDegraded(t *testing.T) {
	checker := NewChecker("1.0.0")

	checker.RegisterCheck("healthy", func() CheckResult {
		return CheckResult{Status: StatusHealthy}
	})
	checker.RegisterCheck("degraded", func() CheckResult {
		return CheckResult{Status: StatusDegraded, Message: "high latency"}
	})

	response := checker.RunChecks()
	if response.Status != StatusDegraded {
		t.Errorf("Expected status degraded, got %s", response.Status)
	}
}

func TestIsHealthy(t *testing.T) {
	checker := NewChecker("1.0.0")

	checker.RegisterCheck("check", func() CheckResult {
		return CheckResult{Status: StatusHealthy}
	})

	if !checker.IsHealthy() {
		t.Error("Expected IsHealthy to return true")
	}

	checker.RegisterCheck("bad", func() CheckResult {
		return CheckResult{Status: StatusUnhealthy}
	})

	if checker.IsHealthy() {
		t.Error("Expected IsHealthy to return false")
	}
}

func TestLoopCheck(t *testing.T) {
	check := LoopCheck(time.Second, 500*time.Millisecond, func(ctx context.Context) error { return nil })
	if result := check(); result.Status != StatusHealthy {
		t.Errorf("Expected healthy, got %s", result.Status)
	}

	check = LoopCheck(time.Second, time.Nanosecond, func(ctx context.Context) error {
		time.Sleep(time.Millisecond)
		return nil
	})
	if result := check(); result.Status != StatusDegraded {
		t.Errorf("Expected degraded, got %s", result.Status)
	}

	check = LoopCheck(10*time.Millisecond, time.Second, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	result := check()
	if result.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy, got %s", result.Status)
	}
	if result.Message == "" {
		t.Error("Expected the error as message")
	}
}

func TestListenerCheck(t *testing.T) {
	if result := ListenerCheck(func() string { return "127.0.0.1:5000" })(); result.Status != StatusHealthy {
		t.Errorf("Expected healthy, got %s", result.Status)
	}
	if result := ListenerCheck(func() string { return "" })(); result.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy, got %s", result.Status)
	}
}

func TestHandler(t *testing.T) {
	checker := NewChecker("1.0.0")
	healthy := true
	checker.RegisterCheck("loop", func() CheckResult {
		if healthy {
			return CheckResult{Status: StatusHealthy}
		}
		return CheckResult{Status: StatusUnhealthy, Message: "stopped"}
	})
	handler := checker.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if resp.Version != "1.0.0" || resp.Checks["loop"].Status != StatusHealthy {
		t.Errorf("Unexpected body: %+v", resp)
	}

	healthy = false
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected liveness 200, got %d", rec.Code)
	}
}
