package storage

import (
	"fmt"
	"path"
	"regexp"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildTableFilePath returns the object key holding one table of a dataset.
func BuildTableFilePath(userID, datasetID, tableName string) (string, error) {
	prefix, err := BuildDatasetPrefix(userID, datasetID)
	if err != nil {
		return "", err
	}
	if err := validatePathComponent(tableName, "table name"); err != nil {
		return "", err
	}
	return path.Join(prefix, fmt.Sprintf("%s.parquet", tableName)), nil
}

// BuildDatasetPrefix returns the object key prefix under which every table
// of a dataset is stored.
func BuildDatasetPrefix(userID, datasetID string) (string, error) {
	if err := validatePathComponent(userID, "user id"); err != nil {
		return "", err
	}
	if err := validatePathComponent(datasetID, "dataset id"); err != nil {
		return "", err
	}
	return path.Join("datasets", userID, datasetID), nil
}

// TableNameFromKey extracts the table name from an object key produced by
// BuildTableFilePath. It returns false for keys that do not look like
// table objects.
func TableNameFromKey(key string) (string, bool) {
	base := path.Base(key)
	const suffix = ".parquet"
	if len(base) <= len(suffix) || base[len(base)-len(suffix):] != suffix {
		return "", false
	}
	return base[:len(base)-len(suffix)], true
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
