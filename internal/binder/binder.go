// Package binder binds a finalized ledger entry's hash into a physical
// artifact and a public verification reference.
//
// The binder is strictly downstream of the chain: it consumes current_hash
// and never influences it. Artifact rendering (PDF layout, QR graphics) is an
// external collaborator plugged in through Stamper.
package binder

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ErrStamp marks a failure of the stamping collaborator. The invoice service
// reacts with its bounded compensation.
var ErrStamp = errors.New("artifact stamping failed")

// Stamper embeds a verification reference into a document. Implementations
// that draw QR codes or merge PDF overlays live outside this repository.
type Stamper interface {
	Stamp(doc []byte, ref string) ([]byte, error)
}

// PassthroughStamper returns the document unchanged. It is the default
// collaborator when no rendering integration is configured.
type PassthroughStamper struct{}

// Stamp implements Stamper.
func (PassthroughStamper) Stamp(doc []byte, _ string) ([]byte, error) { return doc, nil }

// ArtifactStore persists stamped artifacts.
type ArtifactStore interface {
	Save(name string, data []byte) error
	Open(name string) ([]byte, error)
}

// Binder produces verification references and stores stamped artifacts.
type Binder struct {
	baseURL   string
	stamper   Stamper
	artifacts ArtifactStore
	logger    *zap.Logger
}

// New creates a Binder. baseURL is the public verification surface the
// reference points at (typically the frontend).
func New(baseURL string, stamper Stamper, artifacts ArtifactStore, logger *zap.Logger) *Binder {
	return &Binder{
		baseURL:   strings.TrimRight(baseURL, "/"),
		stamper:   stamper,
		artifacts: artifacts,
		logger:    logger,
	}
}

// Reference builds the public verification URL embedding the entry hash.
func (b *Binder) Reference(hash string) string {
	return fmt.Sprintf("%s/verify?h=%s", b.baseURL, hash)
}

// Bind stamps the document with ref and persists it under a name prefixed
// with the entry id. It returns the stored artifact name.
func (b *Binder) Bind(entryID int64, name string, doc []byte, ref string) (string, error) {
	stamped, err := b.stamper.Stamp(doc, ref)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStamp, err)
	}

	storedName := fmt.Sprintf("%d_%s", entryID, name)
	if err := b.artifacts.Save(storedName, stamped); err != nil {
		return "", fmt.Errorf("save artifact %s: %w", storedName, err)
	}

	b.logger.Debug("artifact bound",
		zap.Int64("entry_id", entryID),
		zap.String("artifact", storedName),
	)
	return storedName, nil
}

// Artifact loads a previously stored artifact by its stored name.
func (b *Binder) Artifact(name string) ([]byte, error) {
	return b.artifacts.Open(name)
}
