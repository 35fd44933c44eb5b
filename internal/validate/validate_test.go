package validate

import "testing"

func TestEmailValid(t *testing.T) {
	for _, s := range []string{
		"user@test.com",
		"ada@example.com",
		"first.last+tag@sub.domain.co",
		"a@b.cd",
	} {
		if err := Email(s); err != nil {
			t.Fatalf("Email(%q): unexpected error %v", s, err)
		}
	}
}

func TestEmailMissing(t *testing.T) {
	for _, s := range []string{"", "   "} {
		if err := Email(s); err != ErrMissingEmail {
			t.Fatalf("Email(%q): expected ErrMissingEmail, got %v", s, err)
		}
	}
}

func TestEmailInvalidFormat(t *testing.T) {
	for _, s := range []string{
		"plainaddress",
		"no-at-sign.com",
		"user@domain",
		"user@@domain.com",
		"user @domain.com",
		"@domain.com",
		"user@.com",
	} {
		if err := Email(s); err != ErrInvalidEmail {
			t.Fatalf("Email(%q): expected ErrInvalidEmail, got %v", s, err)
		}
	}
}

func TestSuspicious(t *testing.T) {
	cases := []struct {
		email string
		bad   bool
	}{
		{"test123@gmail.com", true},      // test prefix
		{"Test@gmail.com", true},         // case-insensitive prefix
		{"ab@gmail.com", true},           // tiny local part
		{"user123456@gmail.com", true},   // six consecutive digits
		{"someone@throwaway.xyz", true},  // disposable TLD
		{"someone@example.top", true},    // disposable TLD
		{"ada@example.com", false},
		{"contest@example.com", false},   // "test" not at start
		{"user12345@gmail.com", false},   // only five digits
	}
	for _, tc := range cases {
		err := Suspicious(tc.email)
		if tc.bad && err != ErrSuspicious {
			t.Fatalf("Suspicious(%q): expected ErrSuspicious, got %v", tc.email, err)
		}
		if !tc.bad && err != nil {
			t.Fatalf("Suspicious(%q): unexpected error %v", tc.email, err)
		}
	}
}
