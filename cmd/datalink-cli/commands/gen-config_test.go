package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skycoin/datalink/pkg/arq"
)

func TestModeDefaults(t *testing.T) {
	for _, mode := range []arq.Mode{arq.StopAndWait, arq.GoBackN, arq.SelectiveRepeat, arq.SlidingWindow} {
		t.Run(string(mode), func(t *testing.T) {
			c := modeDefaults(mode, arq.DefaultConfig())
			assert.Equal(t, mode, c.Mode)
			assert.NoError(t, c.Validate())
		})
	}
}
