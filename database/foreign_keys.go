/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"gopkg.in/yaml.v3"
)

// ForeignKeyConstraint describes a foreign key relationship between tables.
type ForeignKeyConstraint struct {
	Table           string
	Column          string
	ReferenceTable  string
	ReferenceColumn string
	OnDelete        string // CASCADE, RESTRICT, SET NULL, NO ACTION
	OnUpdate        string
	ConstraintName  string
}

// GenerateConstraintName returns the explicit name or fk_<table>_<column>.
func (fk *ForeignKeyConstraint) GenerateConstraintName() string {
	if fk.ConstraintName != "" {
		return fk.ConstraintName
	}
	return fmt.Sprintf("fk_%s_%s", fk.Table, fk.Column)
}

// GenerateSQL returns the ALTER TABLE statement that adds the constraint.
func (fk *ForeignKeyConstraint) GenerateSQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s(%s)",
		fk.Table, fk.GenerateConstraintName(), fk.Column, fk.ReferenceTable, fk.ReferenceColumn)
	if fk.OnDelete != "" {
		b.WriteString(" ON DELETE " + strings.ToUpper(fk.OnDelete))
	}
	if fk.OnUpdate != "" {
		b.WriteString(" ON UPDATE " + strings.ToUpper(fk.OnUpdate))
	}
	return b.String()
}

var validActions = []string{"CASCADE", "RESTRICT", "SET NULL", "NO ACTION"}

// Validate reports the first structural problem of the constraint.
func (fk *ForeignKeyConstraint) Validate() error {
	switch {
	case fk.Table == "":
		return fmt.Errorf("table name cannot be empty")
	case fk.Column == "":
		return fmt.Errorf("column name cannot be empty: %s", fk.Table)
	case fk.ReferenceTable == "":
		return fmt.Errorf("reference table name cannot be empty: %s.%s", fk.Table, fk.Column)
	case fk.ReferenceColumn == "":
		return fmt.Errorf("reference column name cannot be empty: %s.%s -> %s", fk.Table, fk.Column, fk.ReferenceTable)
	}
	for _, action := range []string{fk.OnDelete, fk.OnUpdate} {
		if action != "" && !isValidAction(action) {
			return fmt.Errorf("invalid referential action: %s, constraint: %s", action, fk.GenerateConstraintName())
		}
	}
	return nil
}

func isValidAction(action string) bool {
	for _, a := range validActions {
		if strings.EqualFold(action, a) {
			return true
		}
	}
	return false
}

// ForeignKeyManager applies store level constraints. Constraints come from code
// (typically the relation registry) and, optionally, a YAML file.
type ForeignKeyManager struct {
	constraints []ForeignKeyConstraint
	configPath  string
	logger      Logger
}

// NewForeignKeyManager creates a manager holding constraints.
func NewForeignKeyManager(logger Logger, constraints ...ForeignKeyConstraint) *ForeignKeyManager {
	if logger == nil {
		logger = NopLogger{}
	}
	return &ForeignKeyManager{
		constraints: append([]ForeignKeyConstraint(nil), constraints...),
		logger:      logger,
	}
}

// NewConfigurableForeignKeyManager loads constraints from the YAML file at
// configPath and appends the code defined ones. A missing file is not an error.
func NewConfigurableForeignKeyManager(logger Logger, configPath string, constraints ...ForeignKeyConstraint) (*ForeignKeyManager, error) {
	fkm := NewForeignKeyManager(logger)
	fkm.configPath = configPath
	if err := fkm.ReloadConfig(); err != nil {
		return nil, err
	}
	fkm.Add(constraints...)
	return fkm, nil
}

// Add appends constraints, skipping names that are already present.
func (fkm *ForeignKeyManager) Add(constraints ...ForeignKeyConstraint) {
	for _, c := range constraints {
		if fkm.find(c.GenerateConstraintName()) >= 0 {
			continue
		}
		fkm.constraints = append(fkm.constraints, c)
	}
}

func (fkm *ForeignKeyManager) find(name string) int {
	for i, c := range fkm.constraints {
		if strings.EqualFold(c.GenerateConstraintName(), name) {
			return i
		}
	}
	return -1
}

// AddAllForeignKeys adds every constraint. Failures (for example a constraint
// that already exists) are logged and skipped; the number applied is returned.
// SQLite cannot add constraints to existing tables, so nothing is executed there.
func (fkm *ForeignKeyManager) AddAllForeignKeys(ctx context.Context, db bun.IDB) (int, error) {
	if db.Dialect().Name() == dialect.SQLite {
		fkm.logger.Debug("Skipping foreign keys, dialect does not support ALTER TABLE ADD CONSTRAINT", "count", len(fkm.constraints))
		return 0, nil
	}
	applied := 0
	for _, constraint := range fkm.constraints {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		if _, err := db.ExecContext(ctx, constraint.GenerateSQL()); err != nil {
			fkm.logger.Debug("Failed to add foreign key constraint", "constraint", constraint.GenerateConstraintName(), "error", err.Error())
			continue
		}
		applied++
		fkm.logger.Debug("Added foreign key constraint", "constraint", constraint.GenerateConstraintName())
	}
	return applied, nil
}

// RemoveForeignKey drops a named foreign key from a table.
func (fkm *ForeignKeyManager) RemoveForeignKey(ctx context.Context, db bun.IDB, tableName, constraintName string) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", tableName, constraintName))
	return err
}

// GetConstraintsByTable returns the constraints defined for a table.
func (fkm *ForeignKeyManager) GetConstraintsByTable(tableName string) []ForeignKeyConstraint {
	var result []ForeignKeyConstraint
	for _, constraint := range fkm.constraints {
		if strings.EqualFold(constraint.Table, tableName) {
			result = append(result, constraint)
		}
	}
	return result
}

// ListAllConstraints returns all configured constraints.
func (fkm *ForeignKeyManager) ListAllConstraints() []ForeignKeyConstraint {
	return append([]ForeignKeyConstraint(nil), fkm.constraints...)
}

// SQLStatements returns the ALTER TABLE statements AddAllForeignKeys would run.
func (fkm *ForeignKeyManager) SQLStatements() []string {
	out := make([]string, 0, len(fkm.constraints))
	for _, c := range fkm.constraints {
		out = append(out, c.GenerateSQL())
	}
	return out
}

// ValidateConstraints checks every constraint for structural problems.
func (fkm *ForeignKeyManager) ValidateConstraints() []error {
	var errs []error
	for _, constraint := range fkm.constraints {
		if err := constraint.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// ForeignKeyConfig is the YAML document listing foreign key constraints.
type ForeignKeyConfig struct {
	ForeignKeys []ForeignKeyConstraintConfig `yaml:"foreign_keys"`
}

// ForeignKeyConstraintConfig is one YAML entry.
type ForeignKeyConstraintConfig struct {
	Table           string `yaml:"table"`
	Column          string `yaml:"column"`
	ReferenceTable  string `yaml:"reference_table"`
	ReferenceColumn string `yaml:"reference_column"`
	OnDelete        string `yaml:"on_delete,omitempty"`
	OnUpdate        string `yaml:"on_update,omitempty"`
	ConstraintName  string `yaml:"constraint_name,omitempty"`
	Description     string `yaml:"description,omitempty"`
}

func (fkc *ForeignKeyConstraintConfig) ToForeignKeyConstraint() ForeignKeyConstraint {
	return ForeignKeyConstraint{
		Table:           fkc.Table,
		Column:          fkc.Column,
		ReferenceTable:  fkc.ReferenceTable,
		ReferenceColumn: fkc.ReferenceColumn,
		OnDelete:        fkc.OnDelete,
		OnUpdate:        fkc.OnUpdate,
		ConstraintName:  fkc.ConstraintName,
	}
}

// ReloadConfig replaces the file based constraints with the current file
// contents. Code defined constraints added later are kept by the caller.
func (fkm *ForeignKeyManager) ReloadConfig() error {
	if fkm.configPath == "" {
		return nil
	}
	data, err := os.ReadFile(fkm.configPath)
	if os.IsNotExist(err) {
		fkm.logger.Debug("Foreign key config not found", "config_path", fkm.configPath)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read foreign key config: %w", err)
	}

	var config ForeignKeyConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse foreign key config: %w", err)
	}
	constraints := make([]ForeignKeyConstraint, 0, len(config.ForeignKeys))
	for _, fkConfig := range config.ForeignKeys {
		constraints = append(constraints, fkConfig.ToForeignKeyConstraint())
	}
	fkm.constraints = constraints
	return nil
}

// ExportToConfig writes the current constraints as YAML, creating directories as needed.
func (fkm *ForeignKeyManager) ExportToConfig(outputPath string) error {
	config := ForeignKeyConfig{ForeignKeys: make([]ForeignKeyConstraintConfig, 0, len(fkm.constraints))}
	for _, c := range fkm.constraints {
		config.ForeignKeys = append(config.ForeignKeys, ForeignKeyConstraintConfig{
			Table:           c.Table,
			Column:          c.Column,
			ReferenceTable:  c.ReferenceTable,
			ReferenceColumn: c.ReferenceColumn,
			OnDelete:        c.OnDelete,
			OnUpdate:        c.OnUpdate,
			ConstraintName:  c.ConstraintName,
			Description:     fmt.Sprintf("%s.%s -> %s.%s", c.Table, c.Column, c.ReferenceTable, c.ReferenceColumn),
		})
	}

	data, err := yaml.Marshal(&config)
	if err != nil {
		return fmt.Errorf("failed to serialize foreign key config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write foreign key config: %w", err)
	}
	return nil
}

func (fkm *ForeignKeyManager) GetConfigPath() string {
	return fkm.configPath
}
