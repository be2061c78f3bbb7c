package engine

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestTrigger_Touches(t *testing.T) {
	poolA := common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640")
	poolB := common.HexToAddress("0x5777d92f208679DB4b9778590Fa3CAB3aC9e2168")

	trig := &Trigger{TouchedPools: []common.Address{poolA}}
	assert.True(t, trig.Touches(poolA))
	assert.False(t, trig.Touches(poolB))
	assert.False(t, (&Trigger{}).Touches(poolA), "an empty trigger names no pool")
}
