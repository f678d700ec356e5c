package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsValidation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "base validation error",
			err:  ErrValidation,
			want: true,
		},
		{
			name: "unknown item",
			err:  ErrItemNotFound,
			want: true,
		},
		{
			name: "wrapped immutable uuid",
			err:  fmt.Errorf("update order: %w", ErrUUIDImmutable),
			want: true,
		},
		{
			name: "order not found",
			err:  ErrOrderNotFound,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidation(tt.err)
			if got != tt.want {
				t.Errorf("IsValidation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "order not found",
			err:  ErrOrderNotFound,
			want: true,
		},
		{
			name: "joined order not found",
			err:  errors.Join(ErrOrderNotFound, errors.New("extra context")),
			want: true,
		},
		{
			// Неизвестный пользователь при создании заказа — это 400, а не 404.
			name: "user not found is validation",
			err:  ErrUserNotFound,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsNotFound(tt.err)
			if got != tt.want {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.want)
			}
		})
	}
}
