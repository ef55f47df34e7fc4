package store

import "github.com/intent-engine/ie/internal/models"

// RecoverableError is an alias for models.RecoverableError, retained so
// callers can refer to store.RecoverableError without importing models
// directly.
type RecoverableError = models.RecoverableError
