package upload

import (
	"errors"
	"fmt"
)

// ErrSlotBusy is returned when an upload is already in progress for the
// same (composition, type) slot. The slot is single-writer.
var ErrSlotBusy = errors.New("an upload for this slot is already in progress")

// ErrSlotOccupied is returned when the slot already holds an asset. The
// existing asset must be deleted before a replacement can be uploaded.
var ErrSlotOccupied = errors.New("slot already holds an asset")

// ValidationReason classifies a local validation rejection.
type ValidationReason string

const (
	ReasonTooLarge  ValidationReason = "tooLarge"
	ReasonWrongType ValidationReason = "wrongType"
)

// ValidationError is a local rejection; no repository or store call has
// been made when one is returned.
type ValidationError struct {
	Reason ValidationReason
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonTooLarge:
		return "file exceeds the maximum allowed size"
	case ReasonWrongType:
		return "file media type does not match the slot"
	}
	return "invalid file"
}

// SlotRequestError means the write location could not be issued. No partial
// state exists.
type SlotRequestError struct {
	Err error
}

func (e *SlotRequestError) Error() string {
	return fmt.Sprintf("failed to request upload slot: %v", e.Err)
}

func (e *SlotRequestError) Unwrap() error {
	return e.Err
}

// TransferError means the byte transfer to the write location failed. No
// metadata record exists yet, so nothing needs cleaning up.
type TransferError struct {
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("upload transfer failed: %v", e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// OrphanedUploadError means the bytes were written but the asset record
// could not be created. A best-effort compensating delete of the object is
// attempted; if that also failed, CleanupErr is set and the object must be
// reconciled by the out-of-band GC sweep.
type OrphanedUploadError struct {
	ObjectKey  string
	Err        error
	CleanupErr error
}

func (e *OrphanedUploadError) Error() string {
	if e.CleanupErr != nil {
		return fmt.Sprintf("upload confirmation failed and object %s could not be cleaned up: %v (cleanup: %v)",
			e.ObjectKey, e.Err, e.CleanupErr)
	}
	return fmt.Sprintf("upload confirmation failed for object %s: %v", e.ObjectKey, e.Err)
}

func (e *OrphanedUploadError) Unwrap() error {
	return e.Err
}
