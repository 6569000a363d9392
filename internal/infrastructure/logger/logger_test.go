package logger

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestSetLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	SetLevel("DEBUG")
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Errorf("expected debug, got %v", zerolog.GlobalLevel())
	}

	SetLevel("nonsense")
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("expected fallback to info, got %v", zerolog.GlobalLevel())
	}
}
