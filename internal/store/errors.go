package store

import "github.com/soldalen/heatpumpctl/internal/errors"

const (
	// Configuration Errors
	ErrInvalidDBPath = errors.ErrorCode("store_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed = errors.ErrorCode("store_schema_init_failed")

	// Storage Errors
	ErrStorageInit   = errors.ErrInitFailed
	ErrStorageAccess = errors.ErrPersistence
	ErrStorageClose  = errors.ErrShutdownFailed
)
