package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAuthenticator_RoundTrip(t *testing.T) {
	a, err := NewAuthenticator("s3cret", "claims-test", "")
	if err != nil {
		t.Fatalf("NewAuthenticator() error = %v", err)
	}

	token, err := a.Issue("merchant-42", []string{"merchant"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	p, err := a.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if p.Subject != "merchant-42" {
		t.Errorf("Subject = %q, want merchant-42", p.Subject)
	}
	if !p.HasRole(a.MerchantRole()) {
		t.Errorf("Roles = %v, want merchant", p.Roles)
	}
	if p.HasRole("admin") {
		t.Error("HasRole(admin) = true")
	}
}

func TestAuthenticator_Rejects(t *testing.T) {
	a, _ := NewAuthenticator("s3cret", "claims-test", "")
	other, _ := NewAuthenticator("different", "claims-test", "")
	wrongIssuer, _ := NewAuthenticator("s3cret", "someone-else", "")

	expired, _ := a.Issue("u1", nil, -time.Minute)
	forged, _ := other.Issue("u1", nil, time.Hour)
	foreign, _ := wrongIssuer.Issue("u1", nil, time.Hour)
	noSubject, _ := a.Issue("", nil, time.Hour)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "u1", Issuer: "claims-test"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expired},
		{"wrong secret", forged},
		{"wrong issuer", foreign},
		{"missing subject", noSubject},
		{"alg none", none},
		{"garbage", "not.a.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.Validate(tt.token); err == nil {
				t.Error("Validate() error = nil, want error")
			}
		})
	}
}

func TestNewAuthenticator_RequiresSecret(t *testing.T) {
	if _, err := NewAuthenticator("", "", ""); err == nil {
		t.Error("NewAuthenticator() error = nil, want error")
	}
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"bearer", "Bearer abc.def", "abc.def", false},
		{"lower case", "bearer abc.def", "abc.def", false},
		{"missing", "", "", true},
		{"no token", "Bearer", "", true},
		{"basic", "Basic dXNlcjpwYXNz", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := http.NewRequest(http.MethodGet, "/v1/claims", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, err := ExtractBearer(r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractBearer() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractBearer() = %q, want %q", got, tt.want)
			}
		})
	}

	r, _ := http.NewRequest(http.MethodGet, "/", nil)
	if _, err := ExtractBearer(r); !errors.Is(err, ErrMissingToken) {
		t.Errorf("ExtractBearer() error = %v, want ErrMissingToken", err)
	}
}

func TestPrincipalContext(t *testing.T) {
	if PrincipalFrom(context.Background()) != nil {
		t.Error("PrincipalFrom(empty) != nil")
	}
	p := &Principal{Subject: "u1"}
	if got := PrincipalFrom(WithPrincipal(context.Background(), p)); got != p {
		t.Errorf("PrincipalFrom() = %v, want %v", got, p)
	}
}
