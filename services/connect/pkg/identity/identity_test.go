package identity

import (
	"errors"
	"testing"

	"github.com/ruet-connect/connect/services/connect/pkg/models"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase", "User@Example.COM", "user@example.com"},
		{"trim whitespace", "  2103141@student.ruet.ac.bd  ", "2103141@student.ruet.ac.bd"},
		{"gmail plus alias", "user+shopping@gmail.com", "user@gmail.com"},
		{"gmail dots", "u.s.e.r@gmail.com", "user@gmail.com"},
		{"googlemail to gmail", "user@googlemail.com", "user@gmail.com"},
		{"non-gmail dots preserved", "first.last@ruet.ac.bd", "first.last@ruet.ac.bd"},
		{"no at sign", "noemail", "noemail"},
		{"empty string", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeEmail(tt.input)
			if got != tt.want {
				t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDeriveShortID(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		want    string
		wantErr bool
	}{
		{"student", "2103141@student.ruet.ac.bd", "2103141", false},
		{"student mixed case", " 2103141@Student.RUET.ac.bd ", "2103141", false},
		{"teacher raw local part", "rahim.cse@ruet.ac.bd", "rahim.cse", false},
		{"external domain", "someone@gmail.com", "someone", false},
		{"student too short", "210314@student.ruet.ac.bd", "", true},
		{"student too long", "21031411@student.ruet.ac.bd", "", true},
		{"student non-digit", "21031a1@student.ruet.ac.bd", "", true},
		{"missing at", "2103141", "", true},
		{"empty local", "@student.ruet.ac.bd", "", true},
		{"empty domain", "2103141@", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DeriveShortID(tt.email)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedEmail) {
					t.Fatalf("DeriveShortID(%q) error = %v, want ErrMalformedEmail", tt.email, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DeriveShortID(%q): %v", tt.email, err)
			}
			if got != tt.want {
				t.Errorf("DeriveShortID(%q) = %q, want %q", tt.email, got, tt.want)
			}
		})
	}
}

func TestDeriveShortID_Deterministic(t *testing.T) {
	const email = "2103141@student.ruet.ac.bd"
	first, err := DeriveShortID(email)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		got, _ := DeriveShortID(email)
		if got != first {
			t.Fatalf("call %d returned %q, want %q", i, got, first)
		}
	}
}

func TestRoleForEmail(t *testing.T) {
	if got := RoleForEmail("2103141@student.ruet.ac.bd"); got != models.RoleStudent {
		t.Errorf("student address role = %q, want %q", got, models.RoleStudent)
	}
	if got := RoleForEmail("head.cse@ruet.ac.bd"); got != models.RoleTeacher {
		t.Errorf("staff address role = %q, want %q", got, models.RoleTeacher)
	}
	if got := RoleForEmail("not-an-email"); got != models.RoleTeacher {
		t.Errorf("malformed address role = %q, want %q", got, models.RoleTeacher)
	}
}

func TestStudentEmail(t *testing.T) {
	tests := map[string]string{
		"2103141":                    "2103141@student.ruet.ac.bd",
		" 2103141 ":                  "2103141@student.ruet.ac.bd",
		"head.cse@ruet.ac.bd":        "head.cse@ruet.ac.bd",
		"2103141@student.ruet.ac.bd": "2103141@student.ruet.ac.bd",
		"":                           "",
	}
	for in, want := range tests {
		if got := StudentEmail(in); got != want {
			t.Errorf("StudentEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidateStudentID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{"2103141", false},
		{"2000001", false},
		{"3013183", false},
		{"1903141", true}, // series below 20
		{"3103141", true}, // series above 30
		{"2114141", true}, // department 14
		{"2103000", true}, // roll 000
		{"2103184", true}, // roll 184
		{"210314", true},
		{"21O3141", true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := ValidateStudentID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateStudentID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"local mobile", "01712345678", "+8801712345678"},
		{"formatted local", "01712-345 678", "+8801712345678"},
		{"with country code", "8801712345678", "+8801712345678"},
		{"with plus", "+8801712345678", "+8801712345678"},
		{"international", "+442071234567", "+442071234567"},
		{"empty string", "", ""},
		{"whitespace only", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizePhone(tt.input)
			if got != tt.want {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestHashIdentifier(t *testing.T) {
	got := HashIdentifier("test")
	want := "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
	if got != want {
		t.Errorf("HashIdentifier(%q) = %q, want %q", "test", got, want)
	}
}
