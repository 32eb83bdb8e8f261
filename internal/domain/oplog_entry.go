package domain

import "time"

// WrappedFunctionType classifies a host call for the durability wrapper
// (see internal/durability). It determines whether the call's outcome must
// be committed before the call returns.
type WrappedFunctionType string

const (
	ReadLocal         WrappedFunctionType = "ReadLocal"
	WriteLocal        WrappedFunctionType = "WriteLocal"
	ReadRemote        WrappedFunctionType = "ReadRemote"
	WriteRemote       WrappedFunctionType = "WriteRemote"
	ReadRemoteBatched WrappedFunctionType = "ReadRemoteBatched"
)

// InterruptKind distinguishes the caller's intent behind an interruption.
type InterruptKind string

const (
	InterruptKindInterrupt InterruptKind = "Interrupt"
	InterruptKindRestart   InterruptKind = "Restart"
	InterruptKindSuspend   InterruptKind = "Suspend"
	InterruptKindJump      InterruptKind = "Jump"
)

// UpdateMode selects how a worker picks up a new component version.
type UpdateMode string

const (
	UpdateModeAutomatic UpdateMode = "Automatic"
	UpdateModeManual    UpdateMode = "Manual"
)

// OplogEntry is the tagged-union element of a worker's append-only journal.
// Every variant carries a timestamp; the Kind discriminates which fields are
// populated. Entries are immutable once committed.
type OplogEntry struct {
	Kind      OplogEntryKind
	Timestamp time.Time

	// Create
	CreateArgs      []string
	CreateEnv       []EnvVar
	CreateComponent VersionedWorkerId
	CreateAccount   AccountId

	// ImportedFunctionInvoked
	ImportedFunctionName string
	ImportedResult       OplogPayload
	WrappedType          WrappedFunctionType

	// ExportedFunctionInvoked
	ExportedFunctionName string
	ExportedParams       OplogPayload
	InvocationKey        InvocationKey

	// ExportedFunctionCompleted
	ExportedResult OplogPayload
	ConsumedFuel   int64

	// Error
	ErrorMessage string

	// Jump
	JumpTarget OplogIndex

	// Interrupted / Exited
	InterruptKind InterruptKind

	// PendingUpdate / SuccessfulUpdate / FailedUpdate
	UpdateMode    UpdateMode
	TargetVersion uint64
	UpdateError   string
}

// OplogEntryKind discriminates the variant of an OplogEntry.
type OplogEntryKind string

const (
	EntryCreate                   OplogEntryKind = "Create"
	EntryImportedFunctionInvoked   OplogEntryKind = "ImportedFunctionInvoked"
	EntryExportedFunctionInvoked   OplogEntryKind = "ExportedFunctionInvoked"
	EntryExportedFunctionCompleted OplogEntryKind = "ExportedFunctionCompleted"
	EntrySuspend                  OplogEntryKind = "Suspend"
	EntryError                    OplogEntryKind = "Error"
	EntryNoOp                     OplogEntryKind = "NoOp"
	EntryJump                     OplogEntryKind = "Jump"
	EntryInterrupted              OplogEntryKind = "Interrupted"
	EntryExited                   OplogEntryKind = "Exited"
	EntryChangeRetryPolicy        OplogEntryKind = "ChangeRetryPolicy"
	EntryBeginAtomicRegion        OplogEntryKind = "BeginAtomicRegion"
	EntryEndAtomicRegion          OplogEntryKind = "EndAtomicRegion"
	EntryBeginRemoteWrite         OplogEntryKind = "BeginRemoteWrite"
	EntryEndRemoteWrite           OplogEntryKind = "EndRemoteWrite"
	EntryPendingWorkerInvocation  OplogEntryKind = "PendingWorkerInvocation"
	EntryPendingUpdate            OplogEntryKind = "PendingUpdate"
	EntrySuccessfulUpdate         OplogEntryKind = "SuccessfulUpdate"
	EntryFailedUpdate             OplogEntryKind = "FailedUpdate"
)
