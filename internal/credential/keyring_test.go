package credential

import (
	"errors"
	"fmt"
	"testing"

	"github.com/99designs/keyring"
)

func TestResolveToken(t *testing.T) {
	stored := func(string) (string, error) { return "from-keyring", nil }
	missing := func(string) (string, error) {
		return "", fmt.Errorf("getting credential: %w", keyring.ErrKeyNotFound)
	}
	broken := func(string) (string, error) { return "", errors.New("dbus unavailable") }

	tests := []struct {
		name       string
		env        string
		configured string
		get        func(string) (string, error)
		want       string
		wantErr    bool
	}{
		{"env wins", "from-env", "from-config", stored, "from-env", false},
		{"config before keyring", "", "from-config", stored, "from-config", false},
		{"keyring", "", "", stored, "from-keyring", false},
		{"nothing stored", "", "", missing, "", true},
		{"keyring error", "", "", broken, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(TokenEnv, tt.env)

			got, err := resolveToken(tt.configured, tt.get)
			if tt.wantErr {
				if !errors.Is(err, ErrNoToken) {
					t.Errorf("err = %v, want ErrNoToken", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveToken() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("token = %q, want %q", got, tt.want)
			}
		})
	}
}
