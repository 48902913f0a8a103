package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate = validator.New()

// Validate checks struct tags first, then rules that span sections.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	if cfg.Gateway.Persist && (cfg.Store.Type == "" || cfg.Store.Type == "none") {
		return fmt.Errorf("gateway.persist: requires store.type other than none")
	}

	if cfg.Store.Type == "s3" {
		if b, _ := cfg.Store.Options["bucket"].(string); b == "" {
			return fmt.Errorf("store.options.bucket: required for the s3 store")
		}
	}

	if cfg.Files.ListCount > cfg.Files.PageSize && cfg.Files.PageSize > 0 {
		// a single listing request never asks for more than one page
		return fmt.Errorf("files.list_count: %d exceeds files.page_size %d", cfg.Files.ListCount, cfg.Files.PageSize)
	}

	seen := make(map[uint16]bool)
	for i, d := range cfg.Emulator.Drives {
		if seen[d.Number] {
			return fmt.Errorf("emulator.drives[%d]: duplicate drive number %d", i, d.Number)
		}
		seen[d.Number] = true
	}

	return nil
}

// formatValidationError reports the first failing field.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
