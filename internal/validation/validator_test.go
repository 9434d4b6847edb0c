// MateSync - Vehicle Telemetry Mirror and Background Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matesync

package validation

import (
	"strings"
	"testing"
)

type simulateRequest struct {
	VehicleID int    `validate:"min=1"`
	Tire      string `validate:"required,tire"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name    string
		req     simulateRequest
		wantErr bool
		wantTag string
	}{
		{"valid", simulateRequest{VehicleID: 1, Tire: "FL"}, false, ""},
		{"lowercase tire", simulateRequest{VehicleID: 2, Tire: "rr"}, false, ""},
		{"bad tire", simulateRequest{VehicleID: 1, Tire: "spare"}, true, "tire"},
		{"missing tire", simulateRequest{VehicleID: 1}, true, "required"},
		{"zero vehicle", simulateRequest{VehicleID: 0, Tire: "FR"}, true, "min"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateStruct() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && err.Errors()[0].Tag() != tt.wantTag {
				t.Errorf("tag = %q, want %q", err.Errors()[0].Tag(), tt.wantTag)
			}
		})
	}
}

func TestToAPIError(t *testing.T) {
	single := ValidateStruct(&simulateRequest{VehicleID: 1, Tire: "XX"}).ToAPIError()
	if single.Code != "VALIDATION_ERROR" || single.Message != "Tire must be one of FL, FR, RL, RR" {
		t.Errorf("single = %+v", single)
	}
	if single.Details["field"] != "Tire" {
		t.Errorf("details = %v", single.Details)
	}

	multi := ValidateStruct(&simulateRequest{}).ToAPIError()
	if !strings.Contains(multi.Message, "VehicleID: VehicleID must be at least 1") ||
		!strings.Contains(multi.Message, "Tire: Tire is required") {
		t.Errorf("multi message = %q", multi.Message)
	}
	if fields, ok := multi.Details["fields"].([]map[string]interface{}); !ok || len(fields) != 2 {
		t.Errorf("fields = %v", multi.Details["fields"])
	}
}

func TestGetValidator_Singleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator() returned different instances")
	}
}
