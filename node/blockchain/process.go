// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2024 The Embercoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
	"time"

	"gitlab.com/embercoin/emberd/emberutil"
	"gitlab.com/embercoin/emberd/node/chaindata"
	"gitlab.com/embercoin/emberd/types/pow"
)

// ProcessBlock is the main workhorse for handling insertion of new blocks into
// the blockchain.  It includes functionality such as rejecting duplicate
// blocks, ensuring blocks follow all rules, and insertion into the blockchain
// along with best chain selection and reorganization.
//
// Blocks whose parent is not known are rejected outright.  It is the
// responsibility of the caller to fetch and submit blocks in order, so a block
// that references an unknown parent indicates a misbehaving or lagging source.
//
// When no errors occurred during processing, the return value indicates
// whether or not the block is on the main chain.
//
// This function is safe for concurrent access.
func (b *BlockChain) ProcessBlock(block *emberutil.Block, flags chaindata.BehaviorFlags) (bool, error) {
	b.chainLock.Lock()
	defer b.chainLock.Unlock()

	isMainChain, err := b.processBlock(block, flags)
	if _, ok := err.(chaindata.RuleError); ok {
		b.metrics.blockRejected()
	}
	return isMainChain, err
}

// processBlock is the bulk of ProcessBlock.  See its documentation for
// details.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) processBlock(block *emberutil.Block, flags chaindata.BehaviorFlags) (bool, error) {
	fastAdd := flags&chaindata.BFFastAdd == chaindata.BFFastAdd

	blockHash := block.Hash()
	log.Trace().Msgf("Processing block %v", blockHash)

	// The block must not already exist in the main chain or side chains.
	exists, err := b.blockExists(blockHash)
	if err != nil {
		return false, err
	}
	if exists {
		str := fmt.Sprintf("already have block %v", blockHash)
		return false, chaindata.NewRuleError(chaindata.ErrDuplicateBlock, str)
	}

	// Perform preliminary sanity checks on the block and its transactions.
	err = chaindata.CheckBlockSanityWF(block, b.chainParams.PowParams, b.timeSource, flags)
	if err != nil {
		return false, err
	}

	// Find the previous checkpoint and perform some additional checks based
	// on the checkpoint.  This provides a few nice properties such as
	// preventing old side chain blocks before the last checkpoint,
	// rejecting easy to mine, but otherwise bogus, blocks that could be
	// used to eat memory, and ensuring expected (versus claimed) proof of
	// work requirements since the previous checkpoint are met.
	blockHeader := block.MsgBlock().Header
	checkpointNode, err := b.findPreviousCheckpoint()
	if err != nil {
		return false, err
	}
	if checkpointNode != nil {
		// Ensure the block timestamp is after the checkpoint timestamp.
		checkpointTime := time.Unix(checkpointNode.Timestamp(), 0)
		if blockHeader.Timestamp.Before(checkpointTime) {
			str := fmt.Sprintf("block %v has timestamp %v before last checkpoint timestamp %v",
				blockHash, blockHeader.Timestamp, checkpointTime)
			return false, chaindata.NewRuleError(chaindata.ErrCheckpointTimeTooOld, str)
		}

		if !fastAdd {
			// Even though the checks prior to now have already ensured the
			// proof of work exceeds the claimed amount, the claimed amount
			// is a field in the block header which could be forged.  This
			// check ensures the proof of work is at least the minimum
			// expected based on elapsed time since the last checkpoint and
			// maximum adjustment allowed by the retarget rules.
			duration := blockHeader.Timestamp.Sub(checkpointTime)

			requiredTarget := pow.CompactToBig(b.calcEasiestDifficulty(checkpointNode.Bits(), duration))
			currentTarget := pow.CompactToBig(blockHeader.Bits)

			if currentTarget.Cmp(requiredTarget) > 0 {
				str := fmt.Sprintf("block target difficulty of %064x is too low when compared to the previous "+
					"checkpoint", currentTarget)
				return false, chaindata.NewRuleError(chaindata.ErrDifficultyTooLow, str)
			}
		}
	}

	// The parent of the block must already be known.  Blocks that arrive
	// out of order are not queued for later processing.
	prevHash := &blockHeader.PrevBlock
	prevNode := b.index.LookupNode(prevHash)
	if prevNode == nil {
		str := fmt.Sprintf("previous block %s is unknown", prevHash)
		return false, chaindata.NewRuleError(chaindata.ErrPreviousBlockUnknown, str)
	}
	if b.index.NodeStatus(prevNode).KnownInvalid() {
		str := fmt.Sprintf("previous block %s is known to be invalid", prevHash)
		return false, chaindata.NewRuleError(chaindata.ErrInvalidAncestorBlock, str)
	}

	// The block has passed all context independent checks and appears sane
	// enough to potentially accept it into the block chain.
	isMainChain, err := b.maybeAcceptBlock(block, flags)
	if err != nil {
		return false, err
	}

	log.Info().Msgf("Accepted block (%d,%v)", block.Height(), blockHash)

	return isMainChain, nil
}
