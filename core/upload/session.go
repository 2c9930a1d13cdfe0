package upload

import (
	"context"
	"io"
	"strings"

	"fermata/logger"
	"fermata/model"
	"fermata/repository"
	"fermata/storage"
)

// MaxAssetSize is the upload size cap: 5 MiB.
const MaxAssetSize = 5 << 20

// State is the upload session's position in the protocol.
type State int

const (
	StateEmpty State = iota
	StateValidating
	StateRequestingSlot
	StateTransferring
	StateConfirming
	StateOccupied
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateValidating:
		return "validating"
	case StateRequestingSlot:
		return "requestingSlot"
	case StateTransferring:
		return "transferring"
	case StateConfirming:
		return "confirming"
	case StateOccupied:
		return "occupied"
	}
	return "unknown"
}

// Candidate is the local file descriptor for one upload attempt.
type Candidate struct {
	Name      string
	MediaType string // declared by the client, advisory only
	Size      int64
	Body      io.Reader
}

// Session drives the three-step upload protocol for a single asset slot.
// It is ephemeral: one session covers exactly one attempt, and any failure
// before Occupied falls back to Empty with no asset recorded.
type Session struct {
	repo          repository.CompositionRepository
	store         storage.AssetStore
	compositionID int64
	assetType     model.AssetType
	maxSize       int64

	state State
	slot  *model.UploadSlot
	asset *model.Asset
}

// NewSession creates an empty session for one slot. maxSize <= 0 uses
// MaxAssetSize.
func NewSession(repo repository.CompositionRepository, store storage.AssetStore, compositionID int64, assetType model.AssetType, maxSize int64) *Session {
	if maxSize <= 0 {
		maxSize = MaxAssetSize
	}
	return &Session{
		repo:          repo,
		store:         store,
		compositionID: compositionID,
		assetType:     assetType,
		maxSize:       maxSize,
		state:         StateEmpty,
	}
}

// State returns the session's current protocol state.
func (s *Session) State() State {
	return s.state
}

// Asset returns the confirmed asset, non-nil only in StateOccupied.
func (s *Session) Asset() *model.Asset {
	return s.asset
}

// Upload runs the full chain: validate, request slot, transfer, confirm.
// The only path from Empty to Occupied is through all four steps.
func (s *Session) Upload(ctx context.Context, candidate Candidate) (*model.Asset, error) {
	if s.state == StateOccupied {
		return nil, ErrSlotOccupied
	}
	if s.state != StateEmpty {
		return nil, ErrSlotBusy
	}

	if err := s.validate(candidate); err != nil {
		return nil, err
	}
	if err := s.requestSlot(ctx, candidate); err != nil {
		return nil, err
	}
	if err := s.transfer(ctx, candidate); err != nil {
		return nil, err
	}
	if err := s.confirm(ctx, candidate); err != nil {
		return nil, err
	}
	return s.asset, nil
}

// validate checks the candidate locally. Validation errors never reach the
// network: no repository or store call happens before this passes. The
// media-type check is advisory since a client can lie; the storage boundary
// re-enforces it.
func (s *Session) validate(candidate Candidate) error {
	s.state = StateValidating

	if candidate.Size > s.maxSize {
		s.state = StateEmpty
		return &ValidationError{Reason: ReasonTooLarge}
	}
	if !mediaTypeAllowed(s.assetType, candidate.MediaType) {
		s.state = StateEmpty
		return &ValidationError{Reason: ReasonWrongType}
	}
	return nil
}

// requestSlot asks for a presigned write location. A failure aborts with no
// partial state.
func (s *Session) requestSlot(ctx context.Context, candidate Candidate) error {
	s.state = StateRequestingSlot

	slot, err := s.repo.CreateUploadSlot(ctx, s.compositionID, candidate.Name, candidate.MediaType)
	if err != nil {
		s.state = StateEmpty
		return &SlotRequestError{Err: err}
	}
	s.slot = slot
	return nil
}

// transfer streams the candidate's bytes to the write location. A failure
// needs no cleanup: no metadata record exists yet.
func (s *Session) transfer(ctx context.Context, candidate Candidate) error {
	s.state = StateTransferring

	err := s.store.PutBytes(ctx, s.slot.UploadURL, candidate.Body, candidate.Size, candidate.MediaType)
	if err != nil {
		s.state = StateEmpty
		s.slot = nil
		return &TransferError{Err: err}
	}
	return nil
}

// confirm materializes the asset record. This is the critical edge: on
// failure the bytes already exist in the store with no record referencing
// them, so a best-effort compensating delete runs before reporting the
// orphan.
func (s *Session) confirm(ctx context.Context, candidate Candidate) error {
	s.state = StateConfirming

	asset, err := s.repo.RecordAsset(ctx, s.compositionID, candidate.Name, s.assetType, s.slot.ObjectKey, s.slot.DurableURL)
	if err != nil {
		orphan := &OrphanedUploadError{ObjectKey: s.slot.ObjectKey, Err: err}
		if cleanupErr := s.store.Remove(ctx, s.slot.ObjectKey); cleanupErr != nil {
			orphan.CleanupErr = cleanupErr
			logger.Error("Orphaned upload could not be cleaned up, leaving object for GC sweep",
				logger.String("objectKey", s.slot.ObjectKey),
				logger.ErrorField(cleanupErr))
		}
		s.state = StateEmpty
		s.slot = nil
		return orphan
	}

	s.asset = asset
	s.slot = nil
	s.state = StateOccupied
	return nil
}

// Delete removes the slot's asset: the repository drops the durable record
// (and the stored object), then the local slot clears. Deleting an empty
// slot is a no-op success. Nothing is cleared before the repository
// confirms — deletion is not optimistic.
func (s *Session) Delete(ctx context.Context) error {
	if s.state == StateEmpty {
		return nil
	}
	if s.state != StateOccupied {
		return ErrSlotBusy
	}

	if err := s.repo.DeleteAsset(ctx, s.asset.ID); err != nil {
		return err
	}
	s.asset = nil
	s.state = StateEmpty
	return nil
}

// mediaTypeAllowed checks the declared media type against the slot's
// expected family: documents for sheet music, audio for performances.
func mediaTypeAllowed(assetType model.AssetType, mediaType string) bool {
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	switch assetType {
	case model.AssetSheetMusic:
		return mediaType == "application/pdf"
	case model.AssetPerformance:
		return strings.HasPrefix(mediaType, "audio/")
	}
	return false
}
