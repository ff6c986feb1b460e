package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/h-sim/ai-change-watcher/internal/common"
	"github.com/h-sim/ai-change-watcher/internal/models"
)

// NewValidator returns a validator with the application's custom rules.
func NewValidator() *validator.Validate {
	validate := validator.New()

	_ = validate.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
		switch strings.ToLower(fl.Field().String()) {
		case "", "trace", "debug", "info", "warn", "error", "fatal", "panic":
			return true
		default:
			return false
		}
	})

	_ = validate.RegisterValidation("logformat", func(fl validator.FieldLevel) bool {
		switch strings.ToLower(fl.Field().String()) {
		case "", "console", "text", "json":
			return true
		default:
			return false
		}
	})

	_ = validate.RegisterValidation("docformat", func(fl validator.FieldLevel) bool {
		_, err := models.ParseFormat(fl.Field().String())
		return err == nil
	})

	_ = validate.RegisterValidation("severity", func(fl validator.FieldLevel) bool {
		switch models.Severity(fl.Field().String()) {
		case models.SeverityImportant, models.SeverityRoutine:
			return true
		default:
			return false
		}
	})

	_ = validate.RegisterValidation("trigger", func(fl validator.FieldLevel) bool {
		switch models.Trigger(fl.Field().String()) {
		case models.TriggerNew, models.TriggerEntryAdded, models.TriggerStructural, models.TriggerAny:
			return true
		default:
			return false
		}
	})

	_ = validate.RegisterValidation("backend", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "sqlite", "parquet":
			return true
		default:
			return false
		}
	})

	return validate
}

// ValidateConfig performs validation on the GlobalConfig structure.
func ValidateConfig(cfg *GlobalConfig) error {
	if cfg == nil {
		return common.NewValidationError("config", nil, "configuration is nil")
	}

	err := NewValidator().Struct(cfg)
	if err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			messages := make([]string, 0, len(errs))
			for _, e := range errs {
				msg := fmt.Sprintf("Validation failed for '%s': rule '%s'", trimNamespace(e.Namespace()), e.Tag())
				if e.Param() != "" {
					msg += fmt.Sprintf(" (expected: %s)", e.Param())
				}
				if e.Value() != nil && e.Value() != "" {
					msg += fmt.Sprintf(", actual: '%v'", e.Value())
				}
				messages = append(messages, msg)
			}
			return fmt.Errorf("%w: configuration validation failed:\n  %s", common.ErrInvalidConfiguration, strings.Join(messages, "\n  "))
		}
		return fmt.Errorf("%w: %v", common.ErrInvalidConfiguration, err)
	}

	return validateUniqueTargets(cfg.Targets)
}

// validateUniqueTargets rejects two targets sharing a state key.
func validateUniqueTargets(targets []models.Target) error {
	seen := make(map[string]int, len(targets))
	for i, t := range targets {
		key := t.Key()
		if prev, dup := seen[key]; dup {
			return fmt.Errorf("%w: %w", common.ErrInvalidConfiguration,
				common.NewValidationError(fmt.Sprintf("targets[%d].id", i), key,
					fmt.Sprintf("duplicates targets[%d]", prev)))
		}
		seen[key] = i
	}
	return nil
}

func trimNamespace(ns string) string {
	return strings.TrimPrefix(ns, "GlobalConfig.")
}
