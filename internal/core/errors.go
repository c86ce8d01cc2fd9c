package core

import "errors"

// Core errors that can occur across the system
var (
	// Storage errors
	ErrDatabaseNotFound = errors.New("database not found")
	ErrMigrationFailed  = errors.New("migration failed")
	ErrRecordNotFound   = errors.New("record not found")
	ErrModelCorrupt     = errors.New("persisted model record is corrupt")

	// Engine errors
	ErrEngineNotRunning   = errors.New("engine is not running")
	ErrSchedulerStopped   = errors.New("scheduler is stopped")
	ErrServiceUnavailable = errors.New("completion service unavailable")
	ErrActionFailed       = errors.New("action execution failed")

	// Entity errors
	ErrGoalNotFound     = errors.New("goal not found")
	ErrActionNotFound   = errors.New("action not found")
	ErrSubjectNotFound  = errors.New("subject not found")
	ErrIncidentNotFound = errors.New("incident not found")
	ErrPlanNotFound     = errors.New("plan not found")
	ErrCameraNotFound   = errors.New("camera not found")
	ErrNoHandler        = errors.New("no handler registered for action kind")

	// Validation errors
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidConfidence = errors.New("confidence out of range")
	ErrMissingRequired   = errors.New("missing required field")
)
