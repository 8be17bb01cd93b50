// Copyright (c) 2016-2017 The btcsuite developers
// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/embercoin/emberd/node/blocknodes"
	"gitlab.com/embercoin/emberd/node/chaindata"
	"gitlab.com/embercoin/emberd/types/chaincfg"
	"gitlab.com/embercoin/emberd/types/chainhash"
)

// TestThresholdStateStringer tests the stringized output for the
// ThresholdState type.
func TestThresholdStateStringer(t *testing.T) {
	tests := []struct {
		in   ThresholdState
		want string
	}{
		{ThresholdDefined, "ThresholdDefined"},
		{ThresholdStarted, "ThresholdStarted"},
		{ThresholdLockedIn, "ThresholdLockedIn"},
		{ThresholdActive, "ThresholdActive"},
		{ThresholdFailed, "ThresholdFailed"},
		{0xff, "Unknown ThresholdState (255)"},
	}

	// Detect additional threshold states that don't have the stringer added.
	require.Equal(t, len(tests)-1, int(numThresholdsStates),
		"It appears a threshold state was added without adding an "+
			"associated stringer test")

	for i, test := range tests {
		assert.Equal(t, test.want, test.in.String(), "stringer #%d", i)
	}
}

// TestThresholdStateCache ensure the threshold state cache works as intended
// including adding entries, updating existing entries, and flushing.
func TestThresholdStateCache(t *testing.T) {
	tests := []struct {
		name       string
		numEntries int
		state      ThresholdState
	}{
		{name: "2 entries defined", numEntries: 2, state: ThresholdDefined},
		{name: "7 entries started", numEntries: 7, state: ThresholdStarted},
		{name: "10 entries active", numEntries: 10, state: ThresholdActive},
		{name: "5 entries locked in", numEntries: 5, state: ThresholdLockedIn},
		{name: "3 entries failed", numEntries: 3, state: ThresholdFailed},
	}

nextTest:
	for _, test := range tests {
		cache := &newThresholdCaches(1)[0]
		for i := 0; i < test.numEntries; i++ {
			var hash chainhash.Hash
			hash[0] = uint8(i + 1)

			// Ensure the hash isn't available in the cache already.
			_, ok := cache.Lookup(&hash)
			if ok {
				t.Errorf("Lookup (%s): has entry for hash %v",
					test.name, hash)
				continue nextTest
			}

			// Ensure hash that was added to the cache reports it's
			// available and the state is the expected value.
			cache.Update(&hash, test.state)
			state, ok := cache.Lookup(&hash)
			if !ok {
				t.Errorf("Lookup (%s): missing entry for hash "+
					"%v", test.name, hash)
				continue nextTest
			}
			if state != test.state {
				t.Errorf("Lookup (%s): state mismatch - got "+
					"%v, want %v", test.name, state,
					test.state)
				continue nextTest
			}

			// Ensure adding an existing hash with the same state
			// doesn't break the existing entry.
			cache.Update(&hash, test.state)
			state, ok = cache.Lookup(&hash)
			if !ok {
				t.Errorf("Lookup (%s): missing entry after "+
					"second add for hash %v", test.name,
					hash)
				continue nextTest
			}
			if state != test.state {
				t.Errorf("Lookup (%s): state mismatch after "+
					"second add - got %v, want %v",
					test.name, state, test.state)
				continue nextTest
			}

			// Ensure adding an existing hash with a different state
			// updates the existing entry.
			newState := ThresholdFailed
			if newState == test.state {
				newState = ThresholdStarted
			}
			cache.Update(&hash, newState)
			state, ok = cache.Lookup(&hash)
			if !ok {
				t.Errorf("Lookup (%s): missing entry after "+
					"state change for hash %v", test.name,
					hash)
				continue nextTest
			}
			if state != newState {
				t.Errorf("Lookup (%s): state mismatch after "+
					"state change - got %v, want %v",
					test.name, state, newState)
				continue nextTest
			}
		}
	}
}

// appendFakeNodes extends the passed parent with numNodes synthetic nodes
// carrying the provided block version and returns the new tip.
func appendFakeNodes(parent *blocknodes.BlockNode, numNodes int, blockVersion int32, bits uint32) *blocknodes.BlockNode {
	tip := parent
	for i := 0; i < numNodes; i++ {
		timestamp := time.Unix(tip.Timestamp(), 0).Add(10 * time.Minute)
		tip = newFakeNode(tip, blockVersion, bits, timestamp)
	}
	return tip
}

// TestThresholdStateProgression walks a deployment through the full defined,
// started, locked in, and active life cycle using a synthetic chain.
func TestThresholdStateProgression(t *testing.T) {
	params := chaincfg.SimNetParams
	chain := newFakeChain(&params)
	bits := params.PowParams.PowLimitBits
	window := int(params.MinerConfirmationWindow)

	signalVersion := int32(vbTopBits |
		1<<params.Deployments[chaincfg.DeploymentTestDummy].BitNumber)

	// Until the first window boundary is reached the deployment is defined
	// by definition.
	tip := chain.bestChain.Tip()
	state, err := chain.deploymentState(tip, chaincfg.DeploymentTestDummy)
	require.NoError(t, err)
	assert.Equal(t, ThresholdDefined, state)

	// The first full window moves the deployment into the started state
	// since the start time is in the past.
	tip = appendFakeNodes(tip, window-1, vbLegacyBlockVersion, bits)
	state, err = chain.deploymentState(tip, chaincfg.DeploymentTestDummy)
	require.NoError(t, err)
	assert.Equal(t, ThresholdStarted, state)

	// A window where the vast majority of blocks signal for the deployment
	// locks it in.
	tip = appendFakeNodes(tip, window, signalVersion, bits)
	state, err = chain.deploymentState(tip, chaincfg.DeploymentTestDummy)
	require.NoError(t, err)
	assert.Equal(t, ThresholdLockedIn, state)

	// The deployment becomes active one window after it locked in,
	// regardless of any further signalling.
	tip = appendFakeNodes(tip, window, vbLegacyBlockVersion, bits)
	state, err = chain.deploymentState(tip, chaincfg.DeploymentTestDummy)
	require.NoError(t, err)
	assert.Equal(t, ThresholdActive, state)
}

// TestThresholdStateBelowThreshold ensures a window without enough positive
// votes stays in the started state.
func TestThresholdStateBelowThreshold(t *testing.T) {
	params := chaincfg.SimNetParams
	chain := newFakeChain(&params)
	bits := params.PowParams.PowLimitBits
	window := int(params.MinerConfirmationWindow)
	threshold := int(params.RuleChangeActivationThreshold)

	signalVersion := int32(vbTopBits |
		1<<params.Deployments[chaincfg.DeploymentTestDummy].BitNumber)

	// Move the deployment into the started state.
	tip := appendFakeNodes(chain.bestChain.Tip(), window-1,
		vbLegacyBlockVersion, bits)

	// Signal with one vote short of the activation threshold.
	tip = appendFakeNodes(tip, threshold-1, signalVersion, bits)
	tip = appendFakeNodes(tip, window-threshold+1, vbLegacyBlockVersion, bits)

	state, err := chain.deploymentState(tip, chaincfg.DeploymentTestDummy)
	require.NoError(t, err)
	assert.Equal(t, ThresholdStarted, state)
}

// TestThresholdStateFailedOnTimeout ensures a started deployment whose expire
// time passes without reaching the activation threshold moves to the failed
// state.
func TestThresholdStateFailedOnTimeout(t *testing.T) {
	params := chaincfg.SimNetParams
	window := int(params.MinerConfirmationWindow)

	// Expire the deployment between the first and second window
	// boundaries so the started state is reached before the timeout.
	genesisTime := uint64(params.GenesisBlock().Header.Timestamp.Unix())
	params.Deployments[chaincfg.DeploymentTestDummy].ExpireTime =
		genesisTime + uint64(window)*600

	chain := newFakeChain(&params)
	bits := params.PowParams.PowLimitBits

	// The first window boundary moves the deployment into the started
	// state since the median time is still before the expire time.
	tip := appendFakeNodes(chain.bestChain.Tip(), window-1,
		vbLegacyBlockVersion, bits)
	state, err := chain.deploymentState(tip, chaincfg.DeploymentTestDummy)
	require.NoError(t, err)
	assert.Equal(t, ThresholdStarted, state)

	// A second window without any positive votes whose median time is past
	// the expire time fails the deployment.
	tip = appendFakeNodes(tip, window, vbLegacyBlockVersion, bits)
	state, err = chain.deploymentState(tip, chaincfg.DeploymentTestDummy)
	require.NoError(t, err)
	assert.Equal(t, ThresholdFailed, state)
}

// TestThresholdStateLockedInAtTimeout ensures the vote count takes precedence
// over expiration, so a window that meets the activation threshold locks in
// even when its median time is already past the expire time.
func TestThresholdStateLockedInAtTimeout(t *testing.T) {
	params := chaincfg.SimNetParams
	window := int(params.MinerConfirmationWindow)

	genesisTime := uint64(params.GenesisBlock().Header.Timestamp.Unix())
	params.Deployments[chaincfg.DeploymentTestDummy].ExpireTime =
		genesisTime + uint64(window)*600

	chain := newFakeChain(&params)
	bits := params.PowParams.PowLimitBits

	signalVersion := int32(vbTopBits |
		1<<params.Deployments[chaincfg.DeploymentTestDummy].BitNumber)

	// Move the deployment into the started state.
	tip := appendFakeNodes(chain.bestChain.Tip(), window-1,
		vbLegacyBlockVersion, bits)

	// Every block of the second window signals for the deployment while
	// the window's median time is past the expire time.  The met threshold
	// wins over the timeout.
	tip = appendFakeNodes(tip, window, signalVersion, bits)
	state, err := chain.deploymentState(tip, chaincfg.DeploymentTestDummy)
	require.NoError(t, err)
	assert.Equal(t, ThresholdLockedIn, state)
}

// TestDeploymentStateOutOfRange ensures querying an undefined deployment ID
// returns an error instead of panicking, including the first ID past the end
// of the deployment array.
func TestDeploymentStateOutOfRange(t *testing.T) {
	params := chaincfg.SimNetParams
	chain := newFakeChain(&params)

	for _, deploymentID := range []uint32{
		uint32(chaincfg.DefinedDeployments),
		uint32(chaincfg.DefinedDeployments) + 1,
	} {
		state, err := chain.ThresholdState(deploymentID)
		require.Error(t, err, "deployment ID %d", deploymentID)
		assert.IsType(t, chaindata.DeploymentError(0), err)
		assert.Equal(t, ThresholdFailed, state)

		_, err = chain.IsDeploymentActive(deploymentID)
		require.Error(t, err, "deployment ID %d", deploymentID)
	}
}

// TestCalcNextBlockVersion ensures the expected version bits are set while
// deployments are being voted on.
func TestCalcNextBlockVersion(t *testing.T) {
	params := chaincfg.SimNetParams
	chain := newFakeChain(&params)
	bits := params.PowParams.PowLimitBits
	window := int(params.MinerConfirmationWindow)

	// Before any deployment is started only the top bits are set.  On the
	// simulation network all deployments start at time zero, so the first
	// window boundary moves every defined deployment into the started
	// state and sets its bit.
	expected := uint32(vbTopBits)
	for _, deployment := range params.Deployments {
		expected |= 1 << deployment.BitNumber
	}

	tip := appendFakeNodes(chain.bestChain.Tip(), window-1,
		vbLegacyBlockVersion, bits)
	version, err := chain.calcNextBlockVersion(tip)
	require.NoError(t, err)
	assert.Equal(t, int32(expected), version)
}
