package source

import (
	"errors"
	"fmt"
	"testing"
)

func TestFetchError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *FetchError
		want string
	}{
		{
			name: "status only",
			err: &FetchError{
				Class:      FailureTransient,
				StatusCode: 503,
				Message:    "503 Service Unavailable",
			},
			want: "source transient error (status 503): 503 Service Unavailable",
		},
		{
			name: "with wrapped error",
			err: &FetchError{
				Class:   FailureTransient,
				Message: "request failed",
				Err:     errors.New("connection reset"),
			},
			want: "source transient error (status 0): request failed: connection reset",
		},
		{
			name: "permanent",
			err: &FetchError{
				Class:      FailurePermanent,
				StatusCode: 401,
				Message:    "401 Unauthorized",
			},
			want: "source permanent error (status 401): 401 Unauthorized",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFetchError_Unwrap(t *testing.T) {
	inner := errors.New("timeout")
	err := &FetchError{Class: FailureTransient, Message: "request failed", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("errors.Is should find the wrapped error")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "transient fetch error",
			err:  &FetchError{Class: FailureTransient, StatusCode: 500},
			want: true,
		},
		{
			name: "permanent fetch error",
			err:  &FetchError{Class: FailurePermanent, StatusCode: 400},
			want: false,
		},
		{
			name: "wrapped transient",
			err:  fmt.Errorf("page 3: %w", &FetchError{Class: FailureTransient, StatusCode: 502}),
			want: true,
		},
		{
			name: "plain error is permanent",
			err:  errors.New("boom"),
			want: false,
		},
		{
			name: "nil",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   FailureClass
	}{
		{500, FailureTransient},
		{502, FailureTransient},
		{503, FailureTransient},
		{429, FailureTransient},
		{400, FailurePermanent},
		{401, FailurePermanent},
		{404, FailurePermanent},
	}

	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
