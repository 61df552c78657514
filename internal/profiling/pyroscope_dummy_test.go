//go:build !pyroscope

package profiling

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/op/go-logging.v1"
)

func TestStartDisabled(t *testing.T) {
	require.NoError(t, Start(logging.MustGetLogger("test"), "relay"))
}
