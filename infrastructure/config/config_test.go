package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseEnvironment(t *testing.T) {
	cases := []struct {
		raw    string
		want   Environment
		wantOk bool
	}{
		{"production", Production, true},
		{"PRODUCTION", Production, true},
		{" testing ", Testing, true},
		{"", Development, false},
		{"bogus", Development, false},
	}
	for _, c := range cases {
		got, ok := ParseEnvironment(c.raw)
		assert.Equal(t, c.want, got)
		assert.Equal(t, c.wantOk, ok)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("FEATURE_X", "yes")
	assert.True(t, GetEnvBool("FEATURE_X", false))

	t.Setenv("FEATURE_Y", "")
	assert.False(t, GetEnvBool("FEATURE_Y", false))
	assert.True(t, GetEnvBool("FEATURE_Y", true))

	t.Setenv("FEATURE_Z", "0")
	assert.False(t, GetEnvBool("FEATURE_Z", true))
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("SOME_TIMEOUT", "5s")
	assert.Equal(t, 5*time.Second, GetEnvDuration("SOME_TIMEOUT", time.Second))

	os.Unsetenv("SOME_TIMEOUT_UNSET")
	assert.Equal(t, 2*time.Second, GetEnvDuration("SOME_TIMEOUT_UNSET", 2*time.Second))
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("MAX_RETRIES", "7")
	assert.Equal(t, 7, GetEnvInt("MAX_RETRIES", 3))

	t.Setenv("MAX_RETRIES_BAD", "not-a-number")
	assert.Equal(t, 3, GetEnvInt("MAX_RETRIES_BAD", 3))
}
