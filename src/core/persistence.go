package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	chainStateFilename      = "chain_state.json"
	pendingFeedbackFilename = "pending_feedback.json"
)

// SaveChainState snapshots the node's chain state to a JSON file in the
// data directory.
func (node *RaidenNode) SaveChainState(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	snapshot := node.SnapshotChainState()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal chain state: %w", err)
	}

	filePath := filepath.Join(dataDir, chainStateFilename)
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write chain state file: %w", err)
	}

	return nil
}

// LoadChainState restores a chain state snapshot from the data directory.
// A missing file is not an error; the node starts with the state it was
// constructed with. The node's own address and chain id always win over
// whatever the snapshot carries.
func (node *RaidenNode) LoadChainState(dataDir string) error {
	filePath := filepath.Join(dataDir, chainStateFilename)

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read chain state file: %w", err)
	}

	var snapshot ChainState
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("failed to unmarshal chain state: %w", err)
	}

	node.ChainStateMutex.Lock()
	defer node.ChainStateMutex.Unlock()

	snapshot.OurAddress = node.ChainState.OurAddress
	snapshot.ChainID = node.ChainState.ChainID
	if snapshot.TokenNetworks == nil {
		snapshot.TokenNetworks = make(map[Address]*TokenNetworkState)
	}
	node.ChainState = &snapshot

	return nil
}

// SavePendingFeedback persists queued route feedback reports.
func (node *RaidenNode) SavePendingFeedback(dataDir string) error {
	pending := node.Feedback.Pending()
	if len(pending) == 0 {
		return nil
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(pending, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal pending feedback: %w", err)
	}

	filePath := filepath.Join(dataDir, pendingFeedbackFilename)
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write pending feedback file: %w", err)
	}

	return nil
}

// LoadPendingFeedback restores queued feedback reports from disk.
func (node *RaidenNode) LoadPendingFeedback(dataDir string) error {
	filePath := filepath.Join(dataDir, pendingFeedbackFilename)

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read pending feedback file: %w", err)
	}

	var pending []PendingFeedback
	if err := json.Unmarshal(data, &pending); err != nil {
		return fmt.Errorf("failed to unmarshal pending feedback: %w", err)
	}

	node.Feedback.Restore(pending)
	return nil
}
