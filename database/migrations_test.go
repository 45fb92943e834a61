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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrations(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()

	models := NewModelRegistry()
	models.Register(
		NewModelAdapter((*gadget)(nil), 20),
		NewModelAdapter((*widget)(nil), 10),
	)
	logger := &recordingLogger{}
	mm := NewMigrationManager(db, logger, DataMigrateConfig{EnableForeignKey: true}).
		WithModels(models).
		WithForeignKeys(ForeignKeyConstraint{Table: "gadgets", Column: "widget_id", ReferenceTable: "widgets", ReferenceColumn: "id"})

	require.NoError(t, mm.RunMigrations(ctx))
	require.NoError(t, mm.RunMigrations(ctx))

	applied, err := mm.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, "create_base_tables", applied[0].Name)
	assert.Equal(t, "add_foreign_keys", applied[1].Name)

	_, err = db.NewInsert().Model(&widget{Name: "w"}).Exec(ctx)
	require.NoError(t, err)
	count, err := db.NewSelect().Model((*widget)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.True(t, logger.contains("INFO", "version=001"))
}

func TestRunMigrationsWithoutForeignKeys(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()

	models := NewModelRegistry()
	models.Register(NewModelAdapter((*widget)(nil), 0))
	mm := NewMigrationManager(db, nil, DataMigrateConfig{}).WithModels(models)
	require.NoError(t, mm.RunMigrations(ctx))

	applied, err := mm.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 1)
}

func TestRunMigrationsRejectsInvalidForeignKeys(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()

	mm := NewMigrationManager(db, nil, DataMigrateConfig{EnableForeignKey: true}).
		WithModels(NewModelRegistry()).
		WithForeignKeys(ForeignKeyConstraint{Table: "gadgets"})

	err := mm.RunMigrations(ctx)
	require.ErrorContains(t, err, "migration 002")

	applied, err := mm.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 1)
}

func TestModelRegistryOrdersByPriority(t *testing.T) {
	models := NewModelRegistry()
	models.Register(NewModelAdapter((*gadget)(nil), 5), NewModelAdapter((*widget)(nil), 1))

	instances := models.Instances()
	require.Len(t, instances, 2)
	assert.IsType(t, (*widget)(nil), instances[0])
	assert.IsType(t, (*gadget)(nil), instances[1])
}
