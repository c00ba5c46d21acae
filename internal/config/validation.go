package config

import (
	"fmt"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance.
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate checks the configuration using struct tags plus custom rules
// that cannot be expressed declaratively.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	names := make(map[string]bool, len(cfg.Users))
	for i, u := range cfg.Users {
		if names[u.Username] {
			return fmt.Errorf("users[%d]: duplicate username %q", i, u.Username)
		}
		names[u.Username] = true

		if !filepath.IsAbs(u.Home) {
			return fmt.Errorf("users[%d] (%s): home must be an absolute path, got %q", i, u.Username, u.Home)
		}

		// Exactly one credential form per user.
		if u.Password == "" && u.PasswordBcrypt == "" {
			return fmt.Errorf("users[%d] (%s): one of password or password_bcrypt is required", i, u.Username)
		}
		if u.Password != "" && u.PasswordBcrypt != "" {
			return fmt.Errorf("users[%d] (%s): password and password_bcrypt are mutually exclusive", i, u.Username)
		}
	}
	return nil
}

// formatValidationError converts validator errors into user-friendly
// messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
