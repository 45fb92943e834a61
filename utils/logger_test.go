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

package utils

import (
	"encoding/json"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry() *logrus.Entry {
	e := logrus.NewEntry(logrus.New())
	e.Time = time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	e.Level = logrus.WarnLevel
	e.Message = "cascade rolled back"
	e.Data = logrus.Fields{"entity": "Post", "error": errors.New("boom")}
	e.Caller = &runtime.Frame{File: "/src/repository/cascade.go", Line: 42}
	return e
}

func TestLog4jColorFormatter(t *testing.T) {
	f := &Log4jColorFormatter{LoggerName: "TOMBSTONE", NameWidth: 10, DisableColors: true}
	out, err := f.Format(testEntry())
	require.NoError(t, err)

	line := string(out)
	assert.True(t, strings.HasPrefix(line, "2025-03-01 12:30:00.000  WARN "))
	assert.Contains(t, line, "[ TOMBSTONE]")
	assert.Contains(t, line, "cascade.go:42 : cascade rolled back entity=Post error=boom\n")
}

func TestJSONLogFormatter(t *testing.T) {
	f := &JSONLogFormatter{LoggerName: "DATABASE"}
	out, err := f.Format(testEntry())
	require.NoError(t, err)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &rec))
	assert.Equal(t, "warning", rec["level"])
	assert.Equal(t, "DATABASE", rec["logger"])
	assert.Equal(t, "cascade.go:42", rec["caller"])
	assert.Equal(t, map[string]interface{}{"entity": "Post", "error": "boom"}, rec["fields"])
}

func TestNewLoggerIsRegistered(t *testing.T) {
	a := NewLogger("UTILS_TEST")
	b := NewLogger("UTILS_TEST")
	assert.Same(t, a, b)

	assert.True(t, SetLoggerLevel("UTILS_TEST", "error"))
	assert.Equal(t, logrus.ErrorLevel, a.GetLevel())
	assert.False(t, SetLoggerLevel("NOT_REGISTERED", "debug"))
}

func TestEnvDefaults(t *testing.T) {
	t.Setenv("TOMBSTONE_TEST_STR", "x")
	t.Setenv("TOMBSTONE_TEST_BOOL", "true")
	t.Setenv("TOMBSTONE_TEST_INT", "12")
	t.Setenv("TOMBSTONE_TEST_DUR", "90")
	t.Setenv("TOMBSTONE_TEST_BAD", "nope")

	assert.Equal(t, "x", EnvDefaultString("TOMBSTONE_TEST_STR", "y"))
	assert.Equal(t, "y", EnvDefaultString("TOMBSTONE_TEST_UNSET", "y"))
	assert.True(t, EnvDefaultBool("TOMBSTONE_TEST_BOOL", false))
	assert.True(t, EnvDefaultBool("TOMBSTONE_TEST_BAD", true))
	assert.Equal(t, 12, EnvDefaultInt("TOMBSTONE_TEST_INT", 1))
	assert.Equal(t, 1, EnvDefaultInt("TOMBSTONE_TEST_BAD", 1))
	assert.Equal(t, 90*time.Second, EnvDefaultDuration("TOMBSTONE_TEST_DUR", time.Second))
	assert.Equal(t, time.Second, EnvDefaultDuration("TOMBSTONE_TEST_BAD", time.Second))
}
