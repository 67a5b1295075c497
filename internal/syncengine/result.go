package syncengine

import (
	"errors"

	"budgetsync/internal/core"
	"budgetsync/internal/remote"
)

// ErrorKind classifies a failed Result.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindOffline
	KindNoUser
	KindNotFound
	KindRemote
	KindLocal
	KindInvalid
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindOffline:
		return "offline"
	case KindNoUser:
		return "no_user"
	case KindNotFound:
		return "not_found"
	case KindRemote:
		return "remote"
	case KindLocal:
		return "local"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

const (
	MsgOffline       = "Device is offline"
	MsgNoUser        = "No user ID available"
	MsgInitialSync   = "Initial sync completed"
	MsgSynced        = "Data synchronized successfully"
	MsgUploaded      = "Data uploaded successfully"
	MsgDownloaded    = "Data downloaded successfully"
	MsgUserNotFound  = "User document not found"
	MsgUserCreated   = "User profile created"
	MsgSyncInitiated = "Sync initialized"
	MsgForeignData   = "Data belongs to another user"
)

// Conflicts lists local entities that were not uploaded because the remote
// copy is at least as recent.
type Conflicts struct {
	Transactions []core.Transaction `json:"transactions,omitempty"`
	Categories   []core.Category    `json:"categories,omitempty"`
	Budgets      []core.Budget      `json:"budgets,omitempty"`
}

func (c Conflicts) Total() int {
	return len(c.Transactions) + len(c.Categories) + len(c.Budgets)
}

// Result is returned by every public engine operation. Callers branch on
// Success; failures never surface as errors or panics.
type Result struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Kind      ErrorKind       `json:"kind"`
	Data      *core.LocalData `json:"data,omitempty"`
	Conflicts Conflicts       `json:"conflicts"`
}

func succeed(msg string) Result {
	return Result{Success: true, Message: msg}
}

func fail(kind ErrorKind, msg string) Result {
	return Result{Success: false, Kind: kind, Message: msg}
}

// failure maps an error from a collaborator to a Result.
func failure(prefix string, err error) Result {
	kind := KindRemote
	switch {
	case errors.Is(err, remote.ErrNotFound):
		kind = KindNotFound
	case errors.Is(err, errLocal):
		kind = KindLocal
	case isValidation(err), errors.Is(err, remote.ErrBatchTooLarge):
		kind = KindInvalid
	}
	return fail(kind, prefix+": "+err.Error())
}

var errLocal = errors.New("local store")

func isValidation(err error) bool {
	for _, target := range []error{
		core.ErrInvalidAmount, core.ErrEmptyDescription, core.ErrEmptyCategory, core.ErrEmptyName,
		core.ErrEmptyID, core.ErrInvalidType, core.ErrInvalidPeriod, core.ErrInvalidDate, core.ErrInvalidTheme,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
