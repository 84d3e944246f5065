package service

import (
	"errors"
	"testing"
	"time"

	"patient-llm/internal/domain"
)

func TestJWTGenerateAndParse(t *testing.T) {
	svc := NewJWTService("secret-key", time.Hour)
	reviewer := domain.Reviewer{ID: "r1", Name: "Alex"}

	token, err := svc.GenerateAccessToken(reviewer)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := svc.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.ReviewerID != "r1" || claims.ReviewerName != "Alex" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestJWTRejectsEmptySecret(t *testing.T) {
	svc := NewJWTService("", time.Hour)
	if _, err := svc.GenerateAccessToken(domain.Reviewer{ID: "r1"}); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid, got %v", err)
	}
}

func TestJWTRejectsTamperedToken(t *testing.T) {
	svc := NewJWTService("secret-key", time.Hour)
	other := NewJWTService("other-secret", time.Hour)

	token, err := other.GenerateAccessToken(domain.Reviewer{ID: "r1"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := svc.ParseAccessToken(token); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid for wrong signature, got %v", err)
	}
}

func TestJWTRejectsExpiredToken(t *testing.T) {
	svc := NewJWTService("secret-key", time.Hour)
	svc.accessTTL = -time.Minute

	token, err := svc.GenerateAccessToken(domain.Reviewer{ID: "r1"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := svc.ParseAccessToken(token); !errors.Is(err, ErrJWTExpired) {
		t.Fatalf("expected ErrJWTExpired, got %v", err)
	}
}

func TestJWTRejectsBlankToken(t *testing.T) {
	svc := NewJWTService("secret-key", time.Hour)
	if _, err := svc.ParseAccessToken("  "); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid, got %v", err)
	}
}
