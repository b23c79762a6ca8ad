package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

// Validate performs comprehensive configuration validation
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateApp()...)
	errors = append(errors, c.validateOptimizer()...)
	errors = append(errors, c.validateEvaluation()...)
	errors = append(errors, c.validateTracker()...)
	errors = append(errors, c.validateProgress()...)

	if len(errors) > 0 {
		return errors
	}

	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors

	if c.App.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "app.name",
			Message: "Application name is required",
		})
	}

	if c.App.Environment != "" {
		validEnvs := map[string]bool{"development": true, "staging": true, "production": true}
		if !validEnvs[c.App.Environment] {
			errors = append(errors, ValidationError{
				Field:   "app.environment",
				Message: fmt.Sprintf("Invalid environment '%s' (must be development, staging, or production)", c.App.Environment),
			})
		}
	}

	if c.App.LogFormat != "" && c.App.LogFormat != "json" && c.App.LogFormat != "console" {
		errors = append(errors, ValidationError{
			Field:   "app.log_format",
			Message: fmt.Sprintf("Invalid log format '%s' (must be json or console)", c.App.LogFormat),
		})
	}

	return errors
}

func (c *Config) validateOptimizer() ValidationErrors {
	var errors ValidationErrors

	if c.Optimizer.PopulationSize < 2 {
		errors = append(errors, ValidationError{
			Field:   "optimizer.population_size",
			Message: "Population size must be at least 2",
		})
	}

	if c.Optimizer.Generations < 1 {
		errors = append(errors, ValidationError{
			Field:   "optimizer.generations",
			Message: "Generation budget must be at least 1",
		})
	}

	if c.Optimizer.ElitistSize < 1 || c.Optimizer.ElitistSize >= c.Optimizer.PopulationSize {
		errors = append(errors, ValidationError{
			Field:   "optimizer.elitist_size",
			Message: "Elitist size must be at least 1 and smaller than the population",
		})
	}

	if c.Optimizer.SwapProbability < 0 || c.Optimizer.SwapProbability > 1 {
		errors = append(errors, ValidationError{
			Field:   "optimizer.swap_probability",
			Message: "Swap probability must be between 0 and 1",
		})
	}

	if c.Optimizer.MutateProbability < 0 || c.Optimizer.MutateProbability > 1 {
		errors = append(errors, ValidationError{
			Field:   "optimizer.mutate_probability",
			Message: "Mutate probability must be between 0 and 1",
		})
	}

	return errors
}

func (c *Config) validateEvaluation() ValidationErrors {
	var errors ValidationErrors

	if c.Evaluation.Workers < 0 {
		errors = append(errors, ValidationError{
			Field:   "evaluation.workers",
			Message: "Worker count cannot be negative (0 means CPU count)",
		})
	}

	if len(c.Evaluation.Objectives) == 0 {
		errors = append(errors, ValidationError{
			Field:   "evaluation.objectives",
			Message: "At least one objective is required",
		})
	}

	validObjectives := map[string]bool{"profit": true, "loss": true, "win_rate": true, "trade_balance": true}
	for _, name := range c.Evaluation.Objectives {
		if !validObjectives[name] {
			errors = append(errors, ValidationError{
				Field:   "evaluation.objectives",
				Message: fmt.Sprintf("Unknown objective '%s' (valid: profit, loss, win_rate, trade_balance)", name),
			})
		}
	}

	return errors
}

func (c *Config) validateTracker() ValidationErrors {
	var errors ValidationErrors

	if c.Tracker.ConvergenceFraction < 0 || c.Tracker.ConvergenceFraction > 1 {
		errors = append(errors, ValidationError{
			Field:   "tracker.convergence_fraction",
			Message: "Convergence fraction must be between 0 and 1",
		})
	}

	if c.Tracker.JumpFraction < 0 || c.Tracker.JumpFraction > 1 {
		errors = append(errors, ValidationError{
			Field:   "tracker.jump_fraction",
			Message: "Jump fraction must be between 0 and 1",
		})
	}

	return errors
}

func (c *Config) validateProgress() ValidationErrors {
	var errors ValidationErrors

	if c.Progress.Enabled && (c.Progress.Port < 1 || c.Progress.Port > 65535) {
		errors = append(errors, ValidationError{
			Field:   "progress.port",
			Message: "Progress port must be between 1 and 65535",
		})
	}

	return errors
}
