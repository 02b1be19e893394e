package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks struct tags and the rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	if cfg.Tool.ConfigFile == cfg.Tool.ReverseConfigFile {
		return fmt.Errorf("tool: config_file and reverse_config_file must differ")
	}
	for i, root := range cfg.Deletion.AllowedRoots {
		if !filepath.IsAbs(root) {
			return fmt.Errorf("deletion.allowed_roots[%d]: %q is not an absolute path", i, root)
		}
		if filepath.Clean(root) == "/" {
			return fmt.Errorf("deletion.allowed_roots[%d]: the filesystem root cannot be an allowed root", i)
		}
	}
	return nil
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
